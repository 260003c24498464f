package models

import "strings"

// KeyKind names which tracking identifier a request carries
type KeyKind string

const (
	KeyPO  KeyKind = "PO"
	KeyPRO KeyKind = "PRO"
)

// UserRequest represents a normalized provisioning request
type UserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	PO        string `json:"po,omitempty"`
	PRO       string `json:"pro,omitempty"`
}

// NewUserRequest builds a UserRequest with trimmed values and a lowercased email
func NewUserRequest(firstName, lastName, email, po, pro string) UserRequest {
	return UserRequest{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		PO:        strings.TrimSpace(po),
		PRO:       strings.TrimSpace(pro),
	}
}

// HasIdentity reports whether first name, last name and email are all present
func (r UserRequest) HasIdentity() bool {
	return r.FirstName != "" && r.LastName != "" && r.Email != ""
}

// HasKey reports whether a PO or PRO is present
func (r UserRequest) HasKey() bool {
	return r.PO != "" || r.PRO != ""
}

// KeyKind returns PRO when a PRO is present, PO otherwise.
// A PRO identifies the order directly, so it wins when both are given.
func (r UserRequest) KeyKind() KeyKind {
	if r.PRO != "" {
		return KeyPRO
	}
	return KeyPO
}

// Key returns the identifier used for vendor resolution
func (r UserRequest) Key() string {
	if r.PRO != "" {
		return r.PRO
	}
	return r.PO
}
