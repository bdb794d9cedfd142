package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// ── Patients ──

// SavePatient upserts a patient by phone number. The first write fixes the
// ID and creation time.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	key := patientKey(p.PhoneNumber)
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "id", p.ID.String())
	pipe.HSetNX(ctx, key, "created_at", formatTime(p.CreatedAt))
	pipe.HSet(ctx, key,
		"name", p.Name,
		"phone_number", p.PhoneNumber,
		"location", p.Location,
		"updated_at", formatTime(p.UpdatedAt),
	)
	pipe.ZAddNX(ctx, patientsKey, goredis.Z{Score: score(p.CreatedAt), Member: p.PhoneNumber})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("carenest/redis: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	vals, err := s.client.HGetAll(ctx, patientKey(phone)).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: get patient: %w", err)
	}
	if len(vals) == 0 {
		return nil, carenest.ErrPatientNotFound
	}
	return mapToPatient(vals)
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	phones, err := s.client.ZRange(ctx, patientsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: list patients: %w", err)
	}
	out := make([]*participant.Patient, 0, len(phones))
	for _, phone := range phones {
		p, err := s.GetPatientByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func mapToPatient(m map[string]string) (*participant.Patient, error) {
	pID, err := id.ParsePatientID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: parse patient id: %w", err)
	}
	return &participant.Patient{
		Entity: carenest.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:          pID,
		Name:        m["name"],
		PhoneNumber: m["phone_number"],
		Location:    m["location"],
	}, nil
}

// ── Helpers ──

// SaveHelper upserts a helper by phone number. The first write fixes the
// ID and creation time.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	key := helperKey(h.PhoneNumber)
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "id", h.ID.String())
	pipe.HSetNX(ctx, key, "created_at", formatTime(h.CreatedAt))
	pipe.HSet(ctx, key,
		"name", h.Name,
		"phone_number", h.PhoneNumber,
		"address", h.Address,
		"dob", formatTime(h.DOB),
		"phone_verified", strconv.FormatBool(h.PhoneVerified),
		"otp_hash", h.OTPHash,
		"otp_expires_at", formatTimePtr(h.OTPExpiresAt),
		"updated_at", formatTime(h.UpdatedAt),
	)
	pipe.ZAddNX(ctx, helpersKey, goredis.Z{Score: score(h.CreatedAt), Member: h.PhoneNumber})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("carenest/redis: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	vals, err := s.client.HGetAll(ctx, helperKey(phone)).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: get helper: %w", err)
	}
	if len(vals) == 0 {
		return nil, carenest.ErrHelperNotFound
	}
	return mapToHelper(vals)
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	phones, err := s.client.ZRange(ctx, helpersKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: list helpers: %w", err)
	}
	out := make([]*participant.Helper, 0, len(phones))
	for _, phone := range phones {
		h, err := s.GetHelperByPhone(ctx, phone)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func mapToHelper(m map[string]string) (*participant.Helper, error) {
	hID, err := id.ParseHelperID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("carenest/redis: parse helper id: %w", err)
	}
	verified, _ := strconv.ParseBool(m["phone_verified"]) //nolint:errcheck // written by SaveHelper
	return &participant.Helper{
		Entity: carenest.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:            hID,
		Name:          m["name"],
		PhoneNumber:   m["phone_number"],
		Address:       m["address"],
		DOB:           parseTime(m["dob"]),
		PhoneVerified: verified,
		OTPHash:       m["otp_hash"],
		OTPExpiresAt:  parseTimePtr(m["otp_expires_at"]),
	}, nil
}
