package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ValidPhone reports whether phone is 7 to 15 digits with an optional
// leading plus.
func ValidPhone(phone string) bool { return phonePattern.MatchString(phone) }

// PatientRequest carries the fields needed to register a patient.
type PatientRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Location    string `json:"location"`
}

// Validate checks required fields.
func (r PatientRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", carenest.ErrInvalidInput)
	case strings.TrimSpace(r.PhoneNumber) == "":
		return fmt.Errorf("%w: phone number is required", carenest.ErrInvalidInput)
	case strings.TrimSpace(r.Location) == "":
		return fmt.Errorf("%w: location is required", carenest.ErrInvalidInput)
	}
	return nil
}

// HelperRequest carries the fields needed to register a helper.
type HelperRequest struct {
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Address     string    `json:"address"`
	DOB         time.Time `json:"dob"`
}

// Validate checks required fields, the phone format, and that DOB is in
// the past relative to now.
func (r HelperRequest) Validate(now time.Time) error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", carenest.ErrInvalidInput)
	case strings.TrimSpace(r.PhoneNumber) == "":
		return fmt.Errorf("%w: phone number is required", carenest.ErrInvalidInput)
	case !ValidPhone(r.PhoneNumber):
		return fmt.Errorf("%w: invalid phone number", carenest.ErrInvalidInput)
	case strings.TrimSpace(r.Address) == "":
		return fmt.Errorf("%w: address is required", carenest.ErrInvalidInput)
	case !r.DOB.IsZero() && !r.DOB.Before(now):
		return fmt.Errorf("%w: dob must be in the past", carenest.ErrInvalidInput)
	}
	return nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithOTPExpiry sets how long an issued OTP stays valid.
func WithOTPExpiry(d time.Duration) Option {
	return func(r *Registry) { r.otpExpiry = d }
}

// WithSender sets where OTPs are delivered.
func WithSender(s OTPSender) Option {
	return func(r *Registry) { r.sender = s }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry registers and looks up patients and helpers.
type Registry struct {
	store     Store
	sender    OTPSender
	logger    *slog.Logger
	otpExpiry time.Duration
	now       func() time.Time
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:     store,
		logger:    slog.Default(),
		otpExpiry: 10 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sender == nil {
		r.sender = LogSender{Logger: r.logger}
	}
	return r
}

// RegisterPatient creates or updates the patient with the request's phone.
func (r *Registry) RegisterPatient(ctx context.Context, req PatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := r.store.GetPatientByPhone(ctx, req.PhoneNumber)
	switch {
	case errors.Is(err, carenest.ErrPatientNotFound):
		p = &Patient{Entity: carenest.NewEntity(), ID: id.NewPatientID()}
	case err != nil:
		return nil, fmt.Errorf("register patient: %w", err)
	default:
		p.Touch()
	}
	p.Name = req.Name
	p.PhoneNumber = req.PhoneNumber
	p.Location = req.Location

	if err := r.store.SavePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	r.logger.InfoContext(ctx, "patient registered",
		slog.String("patient_id", p.ID.String()),
		slog.String("phone", p.PhoneNumber),
	)
	return p, nil
}

// RegisterHelper creates or updates the helper with the request's phone,
// resets verification, and issues a fresh OTP.
func (r *Registry) RegisterHelper(ctx context.Context, req HelperRequest) (*Helper, error) {
	now := r.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	h, err := r.store.GetHelperByPhone(ctx, req.PhoneNumber)
	switch {
	case errors.Is(err, carenest.ErrHelperNotFound):
		h = &Helper{Entity: carenest.Entity{CreatedAt: now, UpdatedAt: now}, ID: id.NewHelperID()}
	case err != nil:
		return nil, fmt.Errorf("register helper: %w", err)
	default:
		h.UpdatedAt = now
	}

	otp, err := generateOTP()
	if err != nil {
		return nil, fmt.Errorf("register helper: %w", err)
	}
	expires := now.Add(r.otpExpiry)

	h.Name = req.Name
	h.PhoneNumber = req.PhoneNumber
	h.Address = req.Address
	h.DOB = req.DOB
	h.PhoneVerified = false
	h.OTPHash = hashOTP(otp)
	h.OTPExpiresAt = &expires

	if err := r.store.SaveHelper(ctx, h); err != nil {
		return nil, fmt.Errorf("register helper: %w", err)
	}
	if err := r.sender.SendOTP(ctx, h.PhoneNumber, otp); err != nil {
		return nil, fmt.Errorf("register helper: send otp: %w", err)
	}
	r.logger.InfoContext(ctx, "helper registration started",
		slog.String("helper_id", h.ID.String()),
		slog.String("phone", h.PhoneNumber),
	)
	return h, nil
}

// VerifyHelper checks otp against the helper's pending OTP and marks the
// phone verified on success. The OTP is single use.
func (r *Registry) VerifyHelper(ctx context.Context, phone, otp string) (*Helper, error) {
	h, err := r.store.GetHelperByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if h.PhoneVerified {
		return h, nil
	}
	if h.OTPHash == "" || !otpMatches(h.OTPHash, otp) {
		return nil, carenest.ErrInvalidOTP
	}
	now := r.now()
	if h.OTPExpiresAt == nil || now.After(*h.OTPExpiresAt) {
		return nil, carenest.ErrOTPExpired
	}

	h.PhoneVerified = true
	h.OTPHash = ""
	h.OTPExpiresAt = nil
	h.UpdatedAt = now
	if err := r.store.SaveHelper(ctx, h); err != nil {
		return nil, fmt.Errorf("verify helper: %w", err)
	}
	return h, nil
}

// ListPatients returns all registered patients.
func (r *Registry) ListPatients(ctx context.Context) ([]*Patient, error) {
	return r.store.ListPatients(ctx)
}

// ListHelpers returns all registered helpers.
func (r *Registry) ListHelpers(ctx context.Context) ([]*Helper, error) {
	return r.store.ListHelpers(ctx)
}

// RequesterExists reports whether ref names a registered patient.
func (r *Registry) RequesterExists(ctx context.Context, ref string) (bool, error) {
	_, err := r.store.GetPatientByPhone(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, carenest.ErrPatientNotFound):
		return false, nil
	default:
		return false, err
	}
}

// HelperExists reports whether ref names a registered helper.
func (r *Registry) HelperExists(ctx context.Context, ref string) (bool, error) {
	_, err := r.store.GetHelperByPhone(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, carenest.ErrHelperNotFound):
		return false, nil
	default:
		return false, err
	}
}
