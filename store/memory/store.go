package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store         = (*Store)(nil)
	_ participant.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	patients map[string]*participant.Patient // key: phone number
	helpers  map[string]*participant.Helper  // key: phone number

	closed bool
	now    func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		patients: make(map[string]*participant.Patient),
		helpers:  make(map[string]*participant.Helper),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return carenest.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new open job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return carenest.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return carenest.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, carenest.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListOpenJobs returns open jobs ordered by creation time.
func (m *Store) ListOpenJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	result := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.IsOpen() {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		}
		return result[i].ID.Compare(result[k].ID) < 0
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ClaimJob performs the open→assigned transition under the write lock, so
// the status check and the assignment are one atomic step.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, workerRef string) (job.ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, carenest.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return 0, carenest.ErrJobNotFound
	}
	if !j.IsOpen() {
		return job.Classify(j.AssignedWorkerRef, workerRef), nil
	}
	j.Assign(workerRef, m.now())
	return job.ClaimWon, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, carenest.ErrStoreClosed
	}

	var count int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Participant Store
// ──────────────────────────────────────────────────

// SavePatient upserts a patient by phone number.
func (m *Store) SavePatient(_ context.Context, p *participant.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return carenest.ErrStoreClosed
	}

	cp := *p
	if existing, ok := m.patients[p.PhoneNumber]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	m.patients[p.PhoneNumber] = &cp
	return nil
}

// GetPatientByPhone retrieves a patient by phone number.
func (m *Store) GetPatientByPhone(_ context.Context, phone string) (*participant.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	p, ok := m.patients[phone]
	if !ok {
		return nil, carenest.ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPatients returns all patients ordered by creation time.
func (m *Store) ListPatients(_ context.Context) ([]*participant.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	result := make([]*participant.Patient, 0, len(m.patients))
	for _, p := range m.patients {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID.Compare(result[k].ID) < 0 })
	return result, nil
}

// SaveHelper upserts a helper by phone number.
func (m *Store) SaveHelper(_ context.Context, h *participant.Helper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return carenest.ErrStoreClosed
	}

	cp := h.Clone()
	if existing, ok := m.helpers[h.PhoneNumber]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	m.helpers[h.PhoneNumber] = cp
	return nil
}

// GetHelperByPhone retrieves a helper by phone number.
func (m *Store) GetHelperByPhone(_ context.Context, phone string) (*participant.Helper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	h, ok := m.helpers[phone]
	if !ok {
		return nil, carenest.ErrHelperNotFound
	}
	return h.Clone(), nil
}

// ListHelpers returns all helpers ordered by creation time.
func (m *Store) ListHelpers(_ context.Context) ([]*participant.Helper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, carenest.ErrStoreClosed
	}

	result := make([]*participant.Helper, 0, len(m.helpers))
	for _, h := range m.helpers {
		result = append(result, h.Clone())
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID.Compare(result[k].ID) < 0 })
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
