package models

// DefaultWarehouseLocationID is the Meijer warehouse location attached to every account
const DefaultWarehouseLocationID = "407987"

// PasswordNotReturned is reported when the TMS creates a user without echoing a password
const PasswordNotReturned = "(not returned)"

// Session is the UserID/UserToken pair returned by a TMS login.
// It lives for a single workflow run and is never cached.
type Session struct {
	UserID    string
	UserToken string
}

// TmsUser represents a TMS account, either found by search or freshly created
type TmsUser struct {
	UserID       string `json:"user_id"`
	Email        string `json:"user_email"`
	TempPassword string `json:"-"`
}

// LocationContact is the result of attaching a user to one location
type LocationContact struct {
	LocationID string `json:"location_id"`
	ContactID  string `json:"contact_id,omitempty"`
	Err        error  `json:"-"`
}

// OK reports whether the contact record was created
func (c LocationContact) OK() bool {
	return c.Err == nil
}

// ContactIDOrUnknown returns the contact ID, or "unknown" when none came back
func (c LocationContact) ContactIDOrUnknown() string {
	if c.ContactID == "" {
		return "unknown"
	}
	return c.ContactID
}
