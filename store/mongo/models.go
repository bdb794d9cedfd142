package mongo

import (
	"fmt"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID                string     `bson:"_id"`
	RequesterRef      string     `bson:"requester_ref"`
	Location          string     `bson:"location"`
	Status            string     `bson:"status"`
	AssignedWorkerRef string     `bson:"assigned_worker_ref,omitempty"`
	AssignedAt        *time.Time `bson:"assigned_at,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:                j.ID.String(),
		RequesterRef:      j.RequesterRef,
		Location:          j.Location,
		Status:            string(j.Status),
		AssignedWorkerRef: j.AssignedWorkerRef,
		AssignedAt:        utcPtr(j.AssignedAt),
		CreatedAt:         j.CreatedAt.UTC(),
		UpdatedAt:         j.UpdatedAt.UTC(),
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", m.ID, err)
	}
	return &job.Job{
		Entity:            carenest.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                jID,
		RequesterRef:      m.RequesterRef,
		Location:          m.Location,
		Status:            job.Status(m.Status),
		AssignedWorkerRef: m.AssignedWorkerRef,
		AssignedAt:        utcPtr(m.AssignedAt),
	}, nil
}

// ── Participant models ────────────────────────────────────────────

type patientModel struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	PhoneNumber string    `bson:"phone_number"`
	Location    string    `bson:"location"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func fromPatientModel(m *patientModel) (*participant.Patient, error) {
	pID, err := id.ParsePatientID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse patient id %q: %w", m.ID, err)
	}
	return &participant.Patient{
		Entity:      carenest.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          pID,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		Location:    m.Location,
	}, nil
}

type helperModel struct {
	ID            string     `bson:"_id"`
	Name          string     `bson:"name"`
	PhoneNumber   string     `bson:"phone_number"`
	Address       string     `bson:"address"`
	DOB           time.Time  `bson:"dob"`
	PhoneVerified bool       `bson:"phone_verified"`
	OTPHash       string     `bson:"otp_hash"`
	OTPExpiresAt  *time.Time `bson:"otp_expires_at"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func fromHelperModel(m *helperModel) (*participant.Helper, error) {
	hID, err := id.ParseHelperID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse helper id %q: %w", m.ID, err)
	}
	h := &participant.Helper{
		Entity:        carenest.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:            hID,
		Name:          m.Name,
		PhoneNumber:   m.PhoneNumber,
		Address:       m.Address,
		PhoneVerified: m.PhoneVerified,
		OTPHash:       m.OTPHash,
		OTPExpiresAt:  utcPtr(m.OTPExpiresAt),
	}
	if !m.DOB.IsZero() {
		h.DOB = m.DOB.UTC()
	}
	return h, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
