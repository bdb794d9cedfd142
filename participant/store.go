package participant

import "context"

// Store defines the persistence contract for patients and helpers.
// Save methods upsert by phone number.
type Store interface {
	SavePatient(ctx context.Context, p *Patient) error
	// GetPatientByPhone returns carenest.ErrPatientNotFound if absent.
	GetPatientByPhone(ctx context.Context, phone string) (*Patient, error)
	ListPatients(ctx context.Context) ([]*Patient, error)

	SaveHelper(ctx context.Context, h *Helper) error
	// GetHelperByPhone returns carenest.ErrHelperNotFound if absent.
	GetHelperByPhone(ctx context.Context, phone string) (*Helper, error)
	ListHelpers(ctx context.Context) ([]*Helper, error)
}
