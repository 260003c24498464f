package provision

import (
	"tms-provisioning-api/internal/models"
)

// Outcome is the result of one workflow run
type Outcome struct {
	State   State
	Request models.UserRequest

	// Created is true when the user did not exist and was created in this run
	Created bool
	User    models.TmsUser

	VendorLocationID    string
	VendorDefaulted     bool
	WarehouseLocationID string

	// Contacts holds the vendor attach followed by the warehouse attach
	Contacts []models.LocationContact

	Err   error
	Crash bool
}

// Partial reports whether the account exists but a location contact failed
func (o Outcome) Partial() bool {
	if o.State != StateDone {
		return false
	}
	for _, c := range o.Contacts {
		if !c.OK() {
			return true
		}
	}
	return false
}

// VendorContact returns the vendor location attach result
func (o Outcome) VendorContact() models.LocationContact {
	if len(o.Contacts) > 0 {
		return o.Contacts[0]
	}
	return models.LocationContact{LocationID: o.VendorLocationID}
}

// WarehouseContact returns the warehouse location attach result
func (o Outcome) WarehouseContact() models.LocationContact {
	if len(o.Contacts) > 1 {
		return o.Contacts[1]
	}
	return models.LocationContact{LocationID: o.WarehouseLocationID}
}
