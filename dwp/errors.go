package dwp

import (
	"errors"
	"fmt"

	carenest "github.com/gaurav-seth/carenest-helper"
)

// reasons pairs each sentinel with its wire name. Order matters: the first
// match wins when an error wraps several.
var reasons = []struct {
	name string
	err  error
	code int
}{
	{"job_not_found", carenest.ErrJobNotFound, ErrCodeNotFound},
	{"requester_not_found", carenest.ErrRequesterNotFound, ErrCodeNotFound},
	{"helper_not_found", carenest.ErrHelperNotFound, ErrCodeNotFound},
	{"patient_not_found", carenest.ErrPatientNotFound, ErrCodeNotFound},
	{"invalid_input", carenest.ErrInvalidInput, ErrCodeBadRequest},
	{"invalid_otp", carenest.ErrInvalidOTP, ErrCodeBadRequest},
	{"otp_expired", carenest.ErrOTPExpired, ErrCodeBadRequest},
	{"job_already_exists", carenest.ErrJobAlreadyExists, ErrCodeConflict},
	{"subscriber_exists", carenest.ErrSubscriberExists, ErrCodeConflict},
	{"broadcast_failed", carenest.ErrBroadcastFailed, ErrCodeUnavailable},
	{"store_unavailable", carenest.ErrStoreUnavailable, ErrCodeUnavailable},
	{"store_closed", carenest.ErrStoreClosed, ErrCodeUnavailable},
	{"bus_closed", carenest.ErrBusClosed, ErrCodeUnavailable},
	{"unauthorized", ErrUnauthorized, ErrCodeUnauthorized},
	{"forbidden", ErrForbidden, ErrCodeForbidden},
}

// ErrorFrame builds the error response for err.
func ErrorFrame(correlID string, err error) *Frame {
	f := NewErrorFrame(correlID, ErrCodeInternal, err.Error())
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			f.Error.Code = r.code
			f.Error.Reason = r.name
			break
		}
	}
	return f
}

// Err rebuilds a Go error from the detail, wrapping the matching sentinel
// so errors.Is works across the wire.
func (e *ErrorDetail) Err() error {
	for _, r := range reasons {
		if r.name == e.Reason {
			return fmt.Errorf("%w: %s", r.err, e.Message)
		}
	}
	switch e.Code {
	case ErrCodeBadRequest:
		return fmt.Errorf("%w: %s", carenest.ErrInvalidInput, e.Message)
	case ErrCodeUnavailable:
		return fmt.Errorf("%w: %s", carenest.ErrStoreUnavailable, e.Message)
	}
	return fmt.Errorf("dwp: error %d: %s", e.Code, e.Message)
}
