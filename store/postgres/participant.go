package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// ── Patients ─────────────────────────────────────────────

// SavePatient upserts a patient by phone number, keeping the original ID
// and creation time.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carenest_patients (id, name, phone_number, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone_number) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			updated_at = EXCLUDED.updated_at`,
		p.ID.String(), p.Name, p.PhoneNumber, p.Location, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("carenest/postgres: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, location, created_at, updated_at
		FROM carenest_patients WHERE phone_number = $1`, phone)
	p, err := scanPatient(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrPatientNotFound
		}
		return nil, fmt.Errorf("carenest/postgres: get patient: %w", err)
	}
	return p, nil
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, phone_number, location, created_at, updated_at
		FROM carenest_patients ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("carenest/postgres: list patients: %w", err)
	}
	defer rows.Close()

	out := []*participant.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/postgres: scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*participant.Patient, error) {
	var (
		rawID string
		p     participant.Patient
	)
	if err := row.Scan(&rawID, &p.Name, &p.PhoneNumber, &p.Location, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParsePatientID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse patient id %q: %w", rawID, err)
	}
	p.ID = parsed
	return &p, nil
}

// ── Helpers ──────────────────────────────────────────────

const helperColumns = `id, name, phone_number, address, dob, phone_verified, otp_hash, otp_expires_at, created_at, updated_at`

// SaveHelper upserts a helper by phone number, keeping the original ID and
// creation time.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carenest_helpers (`+helperColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (phone_number) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			dob = EXCLUDED.dob,
			phone_verified = EXCLUDED.phone_verified,
			otp_hash = EXCLUDED.otp_hash,
			otp_expires_at = EXCLUDED.otp_expires_at,
			updated_at = EXCLUDED.updated_at`,
		h.ID.String(), h.Name, h.PhoneNumber, h.Address, nullTime(h.DOB),
		h.PhoneVerified, h.OTPHash, h.OTPExpiresAt, h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("carenest/postgres: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+helperColumns+` FROM carenest_helpers WHERE phone_number = $1`, phone)
	h, err := scanHelper(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrHelperNotFound
		}
		return nil, fmt.Errorf("carenest/postgres: get helper: %w", err)
	}
	return h, nil
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+helperColumns+` FROM carenest_helpers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("carenest/postgres: list helpers: %w", err)
	}
	defer rows.Close()

	out := []*participant.Helper{}
	for rows.Next() {
		h, err := scanHelper(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/postgres: scan helper: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHelper(row pgx.Row) (*participant.Helper, error) {
	var (
		rawID string
		dob   *time.Time
		h     participant.Helper
	)
	if err := row.Scan(&rawID, &h.Name, &h.PhoneNumber, &h.Address, &dob, &h.PhoneVerified,
		&h.OTPHash, &h.OTPExpiresAt, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseHelperID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse helper id %q: %w", rawID, err)
	}
	h.ID = parsed
	if dob != nil {
		h.DOB = dob.UTC()
	}
	return &h, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
