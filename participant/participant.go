package participant

import (
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
)

// Patient is a person who can request care jobs.
type Patient struct {
	carenest.Entity

	ID          id.PatientID `json:"id"`
	Name        string       `json:"name"`
	PhoneNumber string       `json:"phone_number"`
	Location    string       `json:"location"`
}

// Helper is a person who can claim care jobs.
type Helper struct {
	carenest.Entity

	ID            id.HelperID `json:"id"`
	Name          string      `json:"name"`
	PhoneNumber   string      `json:"phone_number"`
	Address       string      `json:"address"`
	DOB           time.Time   `json:"dob"`
	PhoneVerified bool        `json:"phone_verified"`
	OTPHash       string      `json:"-"`
	OTPExpiresAt  *time.Time  `json:"-"`
}

// Clone returns a deep copy of the helper.
func (h *Helper) Clone() *Helper {
	cp := *h
	if h.OTPExpiresAt != nil {
		t := *h.OTPExpiresAt
		cp.OTPExpiresAt = &t
	}
	return &cp
}
