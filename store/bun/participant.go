package bunstore

import (
	"context"
	"fmt"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// SavePatient upserts a patient by phone number.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	_, err := s.db.NewInsert().Model(toPatientModel(p)).
		On("CONFLICT (phone_number) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("location = EXCLUDED.location").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carenest/bun: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	m := new(patientModel)
	if err := s.db.NewSelect().Model(m).Where("phone_number = ?", phone).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrPatientNotFound
		}
		return nil, fmt.Errorf("carenest/bun: get patient: %w", err)
	}
	return fromPatientModel(m)
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	var models []patientModel
	if err := s.db.NewSelect().Model(&models).OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("carenest/bun: list patients: %w", err)
	}
	out := make([]*participant.Patient, 0, len(models))
	for i := range models {
		p, err := fromPatientModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveHelper upserts a helper by phone number.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	_, err := s.db.NewInsert().Model(toHelperModel(h)).
		On("CONFLICT (phone_number) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("address = EXCLUDED.address").
		Set("dob = EXCLUDED.dob").
		Set("phone_verified = EXCLUDED.phone_verified").
		Set("otp_hash = EXCLUDED.otp_hash").
		Set("otp_expires_at = EXCLUDED.otp_expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("carenest/bun: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	m := new(helperModel)
	if err := s.db.NewSelect().Model(m).Where("phone_number = ?", phone).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrHelperNotFound
		}
		return nil, fmt.Errorf("carenest/bun: get helper: %w", err)
	}
	return fromHelperModel(m)
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	var models []helperModel
	if err := s.db.NewSelect().Model(&models).OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("carenest/bun: list helpers: %w", err)
	}
	out := make([]*participant.Helper, 0, len(models))
	for i := range models {
		h, err := fromHelperModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
