package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// ── Patients ─────────────────────────────────────────────

// SavePatient upserts a patient by phone number.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carenest_patients (id, name, phone_number, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			updated_at = excluded.updated_at`,
		p.ID.String(), p.Name, p.PhoneNumber, p.Location, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("carenest/sqlite: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, location, created_at, updated_at
		FROM carenest_patients WHERE phone_number = ?`, phone)
	p, err := scanPatient(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrPatientNotFound
		}
		return nil, fmt.Errorf("carenest/sqlite: get patient: %w", err)
	}
	return p, nil
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone_number, location, created_at, updated_at
		FROM carenest_patients ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("carenest/sqlite: list patients: %w", err)
	}
	defer rows.Close()

	out := []*participant.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/sqlite: scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row scanner) (*participant.Patient, error) {
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
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

// ── Helpers ──────────────────────────────────────────────

const helperColumns = `id, name, phone_number, address, dob, phone_verified, otp_hash, otp_expires_at, created_at, updated_at`

// SaveHelper upserts a helper by phone number.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carenest_helpers (`+helperColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			dob = excluded.dob,
			phone_verified = excluded.phone_verified,
			otp_hash = excluded.otp_hash,
			otp_expires_at = excluded.otp_expires_at,
			updated_at = excluded.updated_at`,
		h.ID.String(), h.Name, h.PhoneNumber, h.Address, nullTime(h.DOB),
		h.PhoneVerified, h.OTPHash, nullTimePtr(h.OTPExpiresAt),
		h.CreatedAt.UTC(), h.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("carenest/sqlite: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+helperColumns+` FROM carenest_helpers WHERE phone_number = ?`, phone)
	h, err := scanHelper(row)
	if err != nil {
		if isNoRows(err) {
			return nil, carenest.ErrHelperNotFound
		}
		return nil, fmt.Errorf("carenest/sqlite: get helper: %w", err)
	}
	return h, nil
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+helperColumns+` FROM carenest_helpers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("carenest/sqlite: list helpers: %w", err)
	}
	defer rows.Close()

	out := []*participant.Helper{}
	for rows.Next() {
		h, err := scanHelper(rows)
		if err != nil {
			return nil, fmt.Errorf("carenest/sqlite: scan helper: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHelper(row scanner) (*participant.Helper, error) {
	var (
		rawID   string
		dob     sql.NullTime
		expires sql.NullTime
		h       participant.Helper
	)
	if err := row.Scan(&rawID, &h.Name, &h.PhoneNumber, &h.Address, &dob, &h.PhoneVerified,
		&h.OTPHash, &expires, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseHelperID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse helper id %q: %w", rawID, err)
	}
	h.ID = parsed
	if dob.Valid {
		h.DOB = dob.Time.UTC()
	}
	if expires.Valid {
		t := expires.Time.UTC()
		h.OTPExpiresAt = &t
	}
	h.CreatedAt, h.UpdatedAt = h.CreatedAt.UTC(), h.UpdatedAt.UTC()
	return &h, nil
}
