package carenest

import "errors"

var (
	// Store errors.
	ErrNoStore          = errors.New("carenest: no store configured")
	ErrStoreClosed      = errors.New("carenest: store closed")
	ErrMigrationFailed  = errors.New("carenest: migration failed")
	ErrStoreUnavailable = errors.New("carenest: store unavailable")

	// Not found errors.
	ErrJobNotFound       = errors.New("carenest: job not found")
	ErrRequesterNotFound = errors.New("carenest: requester not found")
	ErrHelperNotFound    = errors.New("carenest: helper not found")
	ErrPatientNotFound   = errors.New("carenest: patient not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("carenest: job already exists")

	// Validation errors.
	ErrInvalidInput = errors.New("carenest: invalid input")
	ErrInvalidOTP   = errors.New("carenest: invalid otp")
	ErrOTPExpired   = errors.New("carenest: otp expired")

	// Broadcast errors.
	ErrNoBus            = errors.New("carenest: no event bus configured")
	ErrBusClosed        = errors.New("carenest: event bus closed")
	ErrBroadcastFailed  = errors.New("carenest: broadcast failed")
	ErrSubscriberExists = errors.New("carenest: subscriber already exists")
)

// IsNotFound reports whether err belongs to the not-found family.
// Not-found errors are final and must not be retried.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrRequesterNotFound) ||
		errors.Is(err, ErrHelperNotFound) ||
		errors.Is(err, ErrPatientNotFound)
}

// IsRetryable reports whether err is a transient store failure that a
// caller may retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
