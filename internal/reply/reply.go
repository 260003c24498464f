// Package reply renders workflow outcomes for conversational and programmatic callers.
package reply

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tms-provisioning-api/internal/models"
	"tms-provisioning-api/internal/provision"
	"tms-provisioning-api/internal/tms"
)

// DefaultLoginURL is the TMS portal page handed to new users
const DefaultLoginURL = "https://ship.unisco.com/v2/index.html#/login"

const fillInForm = "first_name-\nlast_name-\nemail-\npo-\npro-"

const (
	missingFieldsMessage = "You must provide first name, last name, and email\n\n---\n\n" + fillInForm
	noPoProMessage       = "❌ No PO or PRO provided.\n\nAdd vendor locations manually if needed."
	loginFailedMessage   = "❌ Unable to authenticate to TMS"
	createFailedMessage  = "❌ TMS creation returned invalid response"
	crashPrefix          = "❌ Server-side crash intercepted:\n\n"
)

// MissingFields is the reply for requests without first name, last name or email
func MissingFields() string { return missingFieldsMessage }

// NoPoPro is the reply for requests carrying neither a PO nor a PRO
func NoPoPro() string { return noPoProMessage }

// Formatter renders outcomes
type Formatter struct {
	LoginURL string
}

// New creates a Formatter; an empty loginURL uses DefaultLoginURL
func New(loginURL string) Formatter {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	return Formatter{LoginURL: loginURL}
}

// Text renders the multi-line conversational reply
func (f Formatter) Text(o provision.Outcome) string {
	switch o.State {
	case provision.StateMissingFields:
		return missingFieldsMessage
	case provision.StateNoPoPro:
		return noPoProMessage
	case provision.StateResolutionFailed:
		return notFoundMessage(o.Request)
	case provision.StateLoginFailed:
		return loginFailedMessage
	case provision.StateCreateFailed:
		if detail := createDetail(o.Err); detail != "" {
			return createFailedMessage + "\n\n" + detail
		}
		return createFailedMessage
	case provision.StateDone:
		return f.doneText(o)
	default:
		return crashPrefix + crashDetail(o.Err)
	}
}

func notFoundMessage(req models.UserRequest) string {
	return fmt.Sprintf("The %s you provided - %s could not be found\n\n---\n\n%s", req.KeyKind(), req.Key(), fillInForm)
}

// createDetail returns the raw TMS body carried by err, else its message
func createDetail(err error) string {
	if err == nil {
		return ""
	}
	if body := strings.TrimSpace(tms.DiagnosticBody(err)); body != "" {
		return body
	}
	return err.Error()
}

func crashDetail(err error) string {
	if err == nil {
		return "unknown error"
	}
	if errors.Is(err, tms.ErrUpstreamUnavailable) {
		return "TMS unreachable"
	}
	return err.Error()
}

func (f Formatter) doneText(o provision.Outcome) string {
	var b strings.Builder
	switch {
	case o.Created && o.Partial():
		b.WriteString("⚠️ Account Created → Some location contacts could not be added.\n\n")
	case o.Created:
		b.WriteString("✅ Account Created → Location contact(s) added.\n\n")
	case o.Partial():
		b.WriteString("⚠️ Account Already Exists → Some locations could not be updated.\n\n")
	default:
		b.WriteString("✅ Account Already Exists → Locations updated.\n\n")
	}

	fmt.Fprintf(&b, "Vendor Location:\n%s\n\nMeijer Location:\n%s\n\n", o.VendorLocationID, o.WarehouseLocationID)
	fmt.Fprintf(&b, "---\n%s\n\nUsername:\n%s", f.LoginURL, o.Request.Email)
	if o.Created {
		fmt.Fprintf(&b, "\n\nPassword:\n%s", password(o.User))
	}

	if o.Partial() {
		b.WriteString("\n\n---\nFailed location contacts:")
		for _, c := range []struct {
			label   string
			contact models.LocationContact
		}{
			{"Vendor", o.VendorContact()},
			{"Meijer", o.WarehouseContact()},
		} {
			if !c.contact.OK() {
				fmt.Fprintf(&b, "\n%s %s: %v", c.label, c.contact.LocationID, c.contact.Err)
			}
		}
		b.WriteString("\n\nAdd the missing locations manually.")
	}
	return b.String()
}

func password(u models.TmsUser) string {
	if u.TempPassword == "" {
		return models.PasswordNotReturned
	}
	return u.TempPassword
}

// Contact is one location attach in a JSON reply
type Contact struct {
	LocationID string `json:"location_id"`
	ContactID  string `json:"contact_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// Body is the programmatic reply
type Body struct {
	Status           string    `json:"status"`
	Message          string    `json:"message"`
	VendorLocationID string    `json:"vendor_location_id,omitempty"`
	MeijerLocationID string    `json:"meijer_location_id"`
	LoginURL         string    `json:"login_url,omitempty"`
	Username         string    `json:"username,omitempty"`
	Password         string    `json:"password,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	Detail           string    `json:"detail,omitempty"`
	Partial          bool      `json:"partial,omitempty"`
	Contacts         []Contact `json:"contacts,omitempty"`
}

// Account statuses reported in Body.Status
const (
	StatusCreated          = "created"
	StatusExisting         = "existing"
	StatusMissingFields    = "missing_fields"
	StatusNoPoPro          = "no_po_pro"
	StatusResolutionFailed = "resolution_failed"
	StatusLoginFailed      = "login_failed"
	StatusCreateFailed     = "create_failed"
	StatusServerFailure    = "server_failure"
)

// JSON renders the structured reply and the HTTP status that goes with it
func (f Formatter) JSON(o provision.Outcome) (int, Body) {
	body := Body{
		Message:          f.Text(o),
		MeijerLocationID: o.WarehouseLocationID,
	}
	if body.MeijerLocationID == "" {
		body.MeijerLocationID = models.DefaultWarehouseLocationID
	}

	switch o.State {
	case provision.StateMissingFields:
		body.Status = StatusMissingFields
		return http.StatusBadRequest, body
	case provision.StateNoPoPro:
		body.Status = StatusNoPoPro
		return http.StatusBadRequest, body
	case provision.StateResolutionFailed:
		body.Status = StatusResolutionFailed
		return http.StatusUnprocessableEntity, body
	case provision.StateLoginFailed:
		body.Status = StatusLoginFailed
		return http.StatusBadGateway, body
	case provision.StateCreateFailed:
		body.Status = StatusCreateFailed
		body.Detail = createDetail(o.Err)
		return http.StatusBadGateway, body
	case provision.StateDone:
	default:
		body.Status = StatusServerFailure
		return http.StatusInternalServerError, body
	}

	body.Status = StatusExisting
	if o.Created {
		body.Status = StatusCreated
		body.Password = password(o.User)
	}
	body.VendorLocationID = o.VendorLocationID
	body.LoginURL = f.LoginURL
	body.Username = o.Request.Email
	body.UserID = o.User.UserID
	body.Partial = o.Partial()
	for _, c := range o.Contacts {
		contact := Contact{LocationID: c.LocationID, ContactID: c.ContactIDOrUnknown(), OK: c.OK()}
		if c.Err != nil {
			contact.Error = c.Err.Error()
		}
		body.Contacts = append(body.Contacts, contact)
	}
	return http.StatusOK, body
}
