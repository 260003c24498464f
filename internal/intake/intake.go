// Package intake turns caller payloads into normalized provisioning requests.
package intake

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"tms-provisioning-api/internal/models"
)

// maxBodyBytes caps caller payloads
const maxBodyBytes = 64 << 10

var (
	// ErrEmptyInput indicates the payload carried neither a text block nor fields
	ErrEmptyInput = errors.New("intake: empty input")
	// ErrAmbiguousInput indicates the payload carried both a text block and fields
	ErrAmbiguousInput = errors.New("intake: both text and structured fields provided")
	// ErrMalformedInput indicates the body could not be decoded
	ErrMalformedInput = errors.New("intake: malformed input")
)

// Verdict is the outcome of normalization
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictMissingFields
	VerdictNoPoPro
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictMissingFields:
		return "missing_fields"
	case VerdictNoPoPro:
		return "no_po_pro"
	default:
		return "unknown"
	}
}

// Payload is either a TextBlock or StructuredFields
type Payload interface {
	fields() map[string]string
}

// TextBlock is a line-oriented block of key-value pairs, e.g. "first_name-Jane"
type TextBlock string

func (t TextBlock) fields() map[string]string {
	out := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(string(t)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "-")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// StructuredFields carries the request fields as separate values
type StructuredFields struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	PO        string `json:"po"`
	PRO       string `json:"pro"`
}

func (s StructuredFields) fields() map[string]string {
	return map[string]string{
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"email":      s.Email,
		"po":         s.PO,
		"pro":        s.PRO,
	}
}

func (s StructuredFields) empty() bool {
	return strings.TrimSpace(s.FirstName+s.LastName+s.Email+s.PO+s.PRO) == ""
}

// Normalize produces the canonical request and tells the caller whether it can proceed.
// Missing identity fields are reported before a missing PO/PRO.
func Normalize(p Payload) (models.UserRequest, Verdict) {
	if p == nil {
		return models.UserRequest{}, VerdictMissingFields
	}
	f := p.fields()
	req := models.NewUserRequest(f["first_name"], f["last_name"], f["email"], f["po"], f["pro"])

	if !req.HasIdentity() {
		return req, VerdictMissingFields
	}
	if !req.HasKey() {
		return req, VerdictNoPoPro
	}
	return req, VerdictOK
}

// envelope accepts both shapes a caller may post as JSON
type envelope struct {
	Text string `json:"text"`
	StructuredFields
}

// Decode reads a payload from an HTTP request body.
// JSON, plain text and form-encoded bodies are accepted.
func Decode(r *http.Request) (Payload, error) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedInput, maxBodyBytes)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, ErrEmptyInput
	}

	switch mediaType {
	case "text/plain":
		return TextBlock(body), nil
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return pick(envelope{
			Text: values.Get("text"),
			StructuredFields: StructuredFields{
				FirstName: values.Get("first_name"),
				LastName:  values.Get("last_name"),
				Email:     values.Get("email"),
				PO:        values.Get("po"),
				PRO:       values.Get("pro"),
			},
		})
	default:
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return pick(env)
	}
}

func pick(env envelope) (Payload, error) {
	hasText := strings.TrimSpace(env.Text) != ""
	hasFields := !env.StructuredFields.empty()
	switch {
	case hasText && hasFields:
		return nil, ErrAmbiguousInput
	case hasText:
		return TextBlock(env.Text), nil
	case hasFields:
		return env.StructuredFields, nil
	default:
		return nil, ErrEmptyInput
	}
}
