package etcd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/participant"
)

var errTxnContention = errors.New("carenest/etcd: too much write contention")

type patientRecord struct {
	ID          string    `msgpack:"id"`
	Name        string    `msgpack:"name"`
	PhoneNumber string    `msgpack:"phone_number"`
	Location    string    `msgpack:"location"`
	CreatedAt   time.Time `msgpack:"created_at"`
	UpdatedAt   time.Time `msgpack:"updated_at"`
}

type helperRecord struct {
	ID            string     `msgpack:"id"`
	Name          string     `msgpack:"name"`
	PhoneNumber   string     `msgpack:"phone_number"`
	Address       string     `msgpack:"address"`
	DOB           time.Time  `msgpack:"dob"`
	PhoneVerified bool       `msgpack:"phone_verified"`
	OTPHash       string     `msgpack:"otp_hash"`
	OTPExpiresAt  *time.Time `msgpack:"otp_expires_at"`
	CreatedAt     time.Time  `msgpack:"created_at"`
	UpdatedAt     time.Time  `msgpack:"updated_at"`
}

// upsert reads key, lets merge fold the stored value (nil when absent)
// into the new one, and commits guarded on the revision it read.
func (s *Store) upsert(ctx context.Context, key string, merge func(existing []byte) (string, error)) error {
	for range maxTxnRetries {
		resp, err := s.client.Get(ctx, key)
		if err != nil {
			return err
		}
		var (
			existing []byte
			rev      int64
		)
		if len(resp.Kvs) > 0 {
			existing, rev = resp.Kvs[0].Value, resp.Kvs[0].ModRevision
		}
		val, err := merge(existing)
		if err != nil {
			return err
		}
		txn, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, val)).
			Commit()
		if err != nil {
			return err
		}
		if txn.Succeeded {
			return nil
		}
	}
	return errTxnContention
}

// ── Patients ─────────────────────────────────────────────

// SavePatient upserts a patient by phone number, keeping the first ID and
// creation time.
func (s *Store) SavePatient(ctx context.Context, p *participant.Patient) error {
	err := s.upsert(ctx, patientsPrefix+p.PhoneNumber, func(existing []byte) (string, error) {
		rec := patientRecord{
			ID:          p.ID.String(),
			Name:        p.Name,
			PhoneNumber: p.PhoneNumber,
			Location:    p.Location,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
		if existing != nil {
			var old patientRecord
			if err := decode(existing, &old); err != nil {
				return "", err
			}
			rec.ID, rec.CreatedAt = old.ID, old.CreatedAt
		}
		return encode(&rec)
	})
	if err != nil {
		return fmt.Errorf("carenest/etcd: save patient: %w", err)
	}
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (s *Store) GetPatientByPhone(ctx context.Context, phone string) (*participant.Patient, error) {
	resp, err := s.client.Get(ctx, patientsPrefix+phone)
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: get patient: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, carenest.ErrPatientNotFound
	}
	return decodePatient(resp.Kvs[0].Value)
}

// ListPatients returns all patients ordered by creation time.
func (s *Store) ListPatients(ctx context.Context) ([]*participant.Patient, error) {
	resp, err := s.client.Get(ctx, patientsPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: list patients: %w", err)
	}
	out := make([]*participant.Patient, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		p, err := decodePatient(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func decodePatient(b []byte) (*participant.Patient, error) {
	var rec patientRecord
	if err := decode(b, &rec); err != nil {
		return nil, fmt.Errorf("carenest/etcd: decode patient: %w", err)
	}
	pID, err := id.ParsePatientID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: parse patient id %q: %w", rec.ID, err)
	}
	return &participant.Patient{
		Entity:      carenest.Entity{CreatedAt: rec.CreatedAt.UTC(), UpdatedAt: rec.UpdatedAt.UTC()},
		ID:          pID,
		Name:        rec.Name,
		PhoneNumber: rec.PhoneNumber,
		Location:    rec.Location,
	}, nil
}

// ── Helpers ──────────────────────────────────────────────

// SaveHelper upserts a helper by phone number.
func (s *Store) SaveHelper(ctx context.Context, h *participant.Helper) error {
	err := s.upsert(ctx, helpersPrefix+h.PhoneNumber, func(existing []byte) (string, error) {
		rec := helperRecord{
			ID:            h.ID.String(),
			Name:          h.Name,
			PhoneNumber:   h.PhoneNumber,
			Address:       h.Address,
			DOB:           h.DOB,
			PhoneVerified: h.PhoneVerified,
			OTPHash:       h.OTPHash,
			OTPExpiresAt:  h.OTPExpiresAt,
			CreatedAt:     h.CreatedAt,
			UpdatedAt:     h.UpdatedAt,
		}
		if existing != nil {
			var old helperRecord
			if err := decode(existing, &old); err != nil {
				return "", err
			}
			rec.ID, rec.CreatedAt = old.ID, old.CreatedAt
		}
		return encode(&rec)
	})
	if err != nil {
		return fmt.Errorf("carenest/etcd: save helper: %w", err)
	}
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (s *Store) GetHelperByPhone(ctx context.Context, phone string) (*participant.Helper, error) {
	resp, err := s.client.Get(ctx, helpersPrefix+phone)
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: get helper: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, carenest.ErrHelperNotFound
	}
	return decodeHelper(resp.Kvs[0].Value)
}

// ListHelpers returns all helpers ordered by creation time.
func (s *Store) ListHelpers(ctx context.Context) ([]*participant.Helper, error) {
	resp, err := s.client.Get(ctx, helpersPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: list helpers: %w", err)
	}
	out := make([]*participant.Helper, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		h, err := decodeHelper(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func decodeHelper(b []byte) (*participant.Helper, error) {
	var rec helperRecord
	if err := decode(b, &rec); err != nil {
		return nil, fmt.Errorf("carenest/etcd: decode helper: %w", err)
	}
	hID, err := id.ParseHelperID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: parse helper id %q: %w", rec.ID, err)
	}
	h := &participant.Helper{
		Entity:        carenest.Entity{CreatedAt: rec.CreatedAt.UTC(), UpdatedAt: rec.UpdatedAt.UTC()},
		ID:            hID,
		Name:          rec.Name,
		PhoneNumber:   rec.PhoneNumber,
		Address:       rec.Address,
		PhoneVerified: rec.PhoneVerified,
		OTPHash:       rec.OTPHash,
	}
	if !rec.DOB.IsZero() {
		h.DOB = rec.DOB.UTC()
	}
	if rec.OTPExpiresAt != nil {
		t := rec.OTPExpiresAt.UTC()
		h.OTPExpiresAt = &t
	}
	return h, nil
}
