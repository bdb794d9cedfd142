package carenest

import "time"

// Config holds configuration for the Hub.
type Config struct {
	// ClaimTimeout bounds a single claim attempt against the store.
	// Zero means no per-claim deadline beyond the caller's context.
	ClaimTimeout time.Duration

	// ClaimMaxAttempts is how many times a helper retries a claim that
	// failed with ErrStoreUnavailable before giving up.
	ClaimMaxAttempts int

	// BroadcastRetries is how many extra publish attempts are made after
	// a job has been stored but the first publish failed.
	BroadcastRetries int

	// AckTimeout is how long a delivery may stay unacknowledged before
	// the in-process broker redelivers it.
	AckTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// RequireKnownHelpers rejects claims from helpers that have not
	// registered.
	RequireKnownHelpers bool

	// OTPExpiry is how long a helper's registration OTP stays valid.
	OTPExpiry time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ClaimTimeout:     5 * time.Second,
		ClaimMaxAttempts: 5,
		BroadcastRetries: 3,
		AckTimeout:       30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		OTPExpiry:        10 * time.Minute,
	}
}
