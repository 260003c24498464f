package tms

import (
	"bytes"
	"encoding/json"
	"strings"
)

// flexString decodes a JSON string or number into a string.
// The TMS returns identifiers in either form depending on the endpoint.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// usable treats the literal "null" the TMS sometimes echoes as empty
func (f flexString) usable() bool {
	return f != "" && !strings.EqualFold(string(f), "null")
}

type loginResponse struct {
	UserID    flexString `json:"UserID"`
	UserToken flexString `json:"UserToken"`
}

type userRecord struct {
	UserID    flexString `json:"user_id"`
	UserEmail string     `json:"user_email"`
}

type userList struct {
	Users []userRecord `json:"users"`
}

type createUserResponse struct {
	UserID       flexString `json:"user_id"`
	UserEmail    string     `json:"user_email"`
	Password     string     `json:"password"`
	TempPassword string     `json:"temp_password"`
}

type locationContactResponse struct {
	LocationContactsID flexString `json:"location_contacts_id"`
}

type orderRecord struct {
	OrderID flexString `json:"order_id"`
	PRO     string     `json:"pro"`
}

type orderList struct {
	Orders []orderRecord `json:"orders"`
}

type orderDetailResponse struct {
	VendorLocationID flexString `json:"vendor_location_id"`
	FkClientID       flexString `json:"fk_client_id"`
}

// isJSONArray reports whether body holds a top-level JSON array
func isJSONArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}
