package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:carenest_jobs"`

	ID                string     `bun:"id,pk"`
	RequesterRef      string     `bun:"requester_ref,notnull"`
	Location          string     `bun:"location,notnull"`
	Status            string     `bun:"status,notnull"`
	AssignedWorkerRef string     `bun:"assigned_worker_ref,nullzero"`
	AssignedAt        *time.Time `bun:"assigned_at"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:                j.ID.String(),
		RequesterRef:      j.RequesterRef,
		Location:          j.Location,
		Status:            string(j.Status),
		AssignedWorkerRef: j.AssignedWorkerRef,
		AssignedAt:        j.AssignedAt,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsed, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/bun: parse job id %q: %w", m.ID, err)
	}
	return &job.Job{
		Entity:            carenest.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                parsed,
		RequesterRef:      m.RequesterRef,
		Location:          m.Location,
		Status:            job.Status(m.Status),
		AssignedWorkerRef: m.AssignedWorkerRef,
		AssignedAt:        m.AssignedAt,
	}, nil
}

// ── Participant models ────────────────────────────────────────────

type patientModel struct {
	bun.BaseModel `bun:"table:carenest_patients"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"name,notnull"`
	PhoneNumber string    `bun:"phone_number,notnull,unique"`
	Location    string    `bun:"location,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func toPatientModel(p *participant.Patient) *patientModel {
	return &patientModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		PhoneNumber: p.PhoneNumber,
		Location:    p.Location,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPatientModel(m *patientModel) (*participant.Patient, error) {
	parsed, err := id.ParsePatientID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/bun: parse patient id %q: %w", m.ID, err)
	}
	return &participant.Patient{
		Entity:      carenest.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          parsed,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		Location:    m.Location,
	}, nil
}

type helperModel struct {
	bun.BaseModel `bun:"table:carenest_helpers"`

	ID            string     `bun:"id,pk"`
	Name          string     `bun:"name,notnull"`
	PhoneNumber   string     `bun:"phone_number,notnull,unique"`
	Address       string     `bun:"address,notnull"`
	DOB           time.Time  `bun:"dob,nullzero"`
	PhoneVerified bool       `bun:"phone_verified,notnull"`
	OTPHash       string     `bun:"otp_hash,notnull"`
	OTPExpiresAt  *time.Time `bun:"otp_expires_at"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
}

func toHelperModel(h *participant.Helper) *helperModel {
	return &helperModel{
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
}

func fromHelperModel(m *helperModel) (*participant.Helper, error) {
	parsed, err := id.ParseHelperID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("carenest/bun: parse helper id %q: %w", m.ID, err)
	}
	h := &participant.Helper{
		Entity:        carenest.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            parsed,
		Name:          m.Name,
		PhoneNumber:   m.PhoneNumber,
		Address:       m.Address,
		PhoneVerified: m.PhoneVerified,
		OTPHash:       m.OTPHash,
		OTPExpiresAt:  m.OTPExpiresAt,
	}
	if !m.DOB.IsZero() {
		h.DOB = m.DOB.UTC()
	}
	return h, nil
}
