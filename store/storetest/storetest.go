// Package storetest provides the conformance suite shared by every
// store.Store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
	"github.com/gaurav-seth/carenest-helper/store"
)

// Factory returns a fresh, migrated, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Ping", testPing},
		{"CreateAndGetJob", testCreateAndGetJob},
		{"ClaimExactlyOneWinner", testClaimExactlyOneWinner},
		{"ClaimIdempotentForWinner", testClaimIdempotentForWinner},
		{"ClaimUnknownJob", testClaimUnknownJob},
		{"ListOpenJobs", testListOpenJobs},
		{"CountJobs", testCountJobs},
		{"Patients", testPatients},
		{"Helpers", testHelpers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewJob returns an open job whose timestamps survive any backend's
// time precision.
func NewJob(requester, location string) *job.Job {
	j := job.New(requester, location)
	j.CreatedAt = j.CreatedAt.Truncate(time.Millisecond)
	j.UpdatedAt = j.CreatedAt
	return j
}

func sameInstant(a, b time.Time) bool {
	d := a.Sub(b)
	return d < time.Millisecond && d > -time.Millisecond
}

// ── Jobs ─────────────────────────────────────────

func testPing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate (second run): %v", err)
	}
}

func testCreateAndGetJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("+15550001", "loc-A")

	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, carenest.ErrJobAlreadyExists) {
		t.Fatalf("duplicate CreateJob: got %v, want ErrJobAlreadyExists", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, j.ID)
	}
	if got.RequesterRef != j.RequesterRef || got.Location != j.Location {
		t.Errorf("got %+v, want requester %q location %q", got, j.RequesterRef, j.Location)
	}
	if got.Status != job.StatusOpen || got.AssignedWorkerRef != "" {
		t.Errorf("new job: status %q owner %q", got.Status, got.AssignedWorkerRef)
	}
	if !sameInstant(got.CreatedAt, j.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, j.CreatedAt)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("GetJob unknown: got %v, want ErrJobNotFound", err)
	}
}

func testClaimExactlyOneWinner(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("+15550001", "loc-A")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	const workers = 16
	results := make([]job.ClaimResult, workers)
	errs := make([]error, workers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = s.ClaimJob(ctx, j.ID, fmt.Sprintf("worker-%d", i))
		}()
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("worker-%d: ClaimJob: %v", i, errs[i])
		}
		switch r {
		case job.ClaimWon:
			if winner >= 0 {
				t.Fatalf("both worker-%d and worker-%d won", winner, i)
			}
			winner = i
		case job.ClaimLost:
		default:
			t.Fatalf("worker-%d: unexpected result %s", i, r)
		}
	}
	if winner < 0 {
		t.Fatal("no worker won")
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusAssigned {
		t.Errorf("status = %q, want assigned", got.Status)
	}
	if want := fmt.Sprintf("worker-%d", winner); got.AssignedWorkerRef != want {
		t.Errorf("owner = %q, want %q", got.AssignedWorkerRef, want)
	}
	if got.AssignedAt == nil {
		t.Error("AssignedAt not set")
	}
}

func testClaimIdempotentForWinner(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("+15550001", "loc-A")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	steps := []struct {
		worker string
		want   job.ClaimResult
	}{
		{"W1", job.ClaimWon},
		{"W1", job.ClaimAlreadyOwned},
		{"W2", job.ClaimLost},
		{"W1", job.ClaimAlreadyOwned},
	}
	for i, st := range steps {
		got, err := s.ClaimJob(ctx, j.ID, st.worker)
		if err != nil {
			t.Fatalf("step %d: ClaimJob(%s): %v", i, st.worker, err)
		}
		if got != st.want {
			t.Fatalf("step %d: ClaimJob(%s) = %s, want %s", i, st.worker, got, st.want)
		}
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.AssignedWorkerRef != "W1" {
		t.Errorf("owner = %q, want W1", got.AssignedWorkerRef)
	}
}

func testClaimUnknownJob(t *testing.T, s store.Store) {
	_, err := s.ClaimJob(context.Background(), id.NewJobID(), "W1")
	if !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("got %v, want ErrJobNotFound", err)
	}
}

func testListOpenJobs(t *testing.T, s store.Store) {
	ctx := context.Background()

	jobs := make([]*job.Job, 4)
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := range jobs {
		jobs[i] = NewJob("+15550001", fmt.Sprintf("loc-%d", i))
		jobs[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		jobs[i].UpdatedAt = jobs[i].CreatedAt
	}
	// Insert out of order; listing must still be oldest first.
	for _, i := range []int{2, 0, 3, 1} {
		if err := s.CreateJob(ctx, jobs[i]); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if _, err := s.ClaimJob(ctx, jobs[1].ID, "W1"); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}

	open, err := s.ListOpenJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpenJobs: %v", err)
	}
	want := []string{jobs[0].ID.String(), jobs[2].ID.String(), jobs[3].ID.String()}
	if len(open) != len(want) {
		t.Fatalf("got %d open jobs, want %d", len(open), len(want))
	}
	for i, j := range open {
		if j.ID.String() != want[i] {
			t.Errorf("open[%d] = %s, want %s", i, j.ID, want[i])
		}
		if j.Status != job.StatusOpen {
			t.Errorf("open[%d] status = %q", i, j.Status)
		}
	}

	page, err := s.ListOpenJobs(ctx, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListOpenJobs page: %v", err)
	}
	if len(page) != 1 || page[0].ID.String() != want[1] {
		t.Errorf("page = %v, want [%s]", page, want[1])
	}
}

func testCountJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 3 {
		j := NewJob("+15550001", "loc")
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if i == 0 {
			if _, err := s.ClaimJob(ctx, j.ID, "W1"); err != nil {
				t.Fatalf("ClaimJob: %v", err)
			}
		}
	}

	tests := []struct {
		status job.Status
		want   int64
	}{
		{"", 3},
		{job.StatusOpen, 2},
		{job.StatusAssigned, 1},
	}
	for _, tt := range tests {
		got, err := s.CountJobs(ctx, job.CountOpts{Status: tt.status})
		if err != nil {
			t.Fatalf("CountJobs(%q): %v", tt.status, err)
		}
		if got != tt.want {
			t.Errorf("CountJobs(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

// ── Participants ─────────────────────────────────

func testPatients(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetPatientByPhone(ctx, "+15550001"); !errors.Is(err, carenest.ErrPatientNotFound) {
		t.Fatalf("GetPatientByPhone unknown: got %v, want ErrPatientNotFound", err)
	}

	p := &participant.Patient{
		Entity:      carenest.NewEntity(),
		ID:          id.NewPatientID(),
		Name:        "Asha",
		PhoneNumber: "+15550001",
		Location:    "loc-A",
	}
	if err := s.SavePatient(ctx, p); err != nil {
		t.Fatalf("SavePatient: %v", err)
	}

	// Upsert by phone keeps the original ID.
	update := *p
	update.ID = id.NewPatientID()
	update.Location = "loc-B"
	if err := s.SavePatient(ctx, &update); err != nil {
		t.Fatalf("SavePatient (update): %v", err)
	}

	got, err := s.GetPatientByPhone(ctx, p.PhoneNumber)
	if err != nil {
		t.Fatalf("GetPatientByPhone: %v", err)
	}
	if got.ID.String() != p.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, p.ID)
	}
	if got.Location != "loc-B" || got.Name != "Asha" {
		t.Errorf("got %+v", got)
	}

	other := &participant.Patient{Entity: carenest.NewEntity(), ID: id.NewPatientID(), Name: "Ravi", PhoneNumber: "+15550002", Location: "loc-C"}
	if err := s.SavePatient(ctx, other); err != nil {
		t.Fatalf("SavePatient: %v", err)
	}
	all, err := s.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListPatients: got %d, want 2", len(all))
	}
}

func testHelpers(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetHelperByPhone(ctx, "+15559001"); !errors.Is(err, carenest.ErrHelperNotFound) {
		t.Fatalf("GetHelperByPhone unknown: got %v, want ErrHelperNotFound", err)
	}

	expires := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Millisecond)
	h := &participant.Helper{
		Entity:       carenest.NewEntity(),
		ID:           id.NewHelperID(),
		Name:         "Meera",
		PhoneNumber:  "+15559001",
		Address:      "12 Lake Road",
		DOB:          time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC),
		OTPHash:      "abc123",
		OTPExpiresAt: &expires,
	}
	if err := s.SaveHelper(ctx, h); err != nil {
		t.Fatalf("SaveHelper: %v", err)
	}

	got, err := s.GetHelperByPhone(ctx, h.PhoneNumber)
	if err != nil {
		t.Fatalf("GetHelperByPhone: %v", err)
	}
	if got.ID.String() != h.ID.String() || got.Address != h.Address || got.OTPHash != "abc123" {
		t.Errorf("got %+v", got)
	}
	if !got.DOB.Equal(h.DOB) {
		t.Errorf("DOB = %v, want %v", got.DOB, h.DOB)
	}
	if got.OTPExpiresAt == nil || !sameInstant(*got.OTPExpiresAt, expires) {
		t.Errorf("OTPExpiresAt = %v, want %v", got.OTPExpiresAt, expires)
	}

	// Verify clears the OTP.
	got.PhoneVerified = true
	got.OTPHash = ""
	got.OTPExpiresAt = nil
	if err := s.SaveHelper(ctx, got); err != nil {
		t.Fatalf("SaveHelper (verify): %v", err)
	}
	verified, err := s.GetHelperByPhone(ctx, h.PhoneNumber)
	if err != nil {
		t.Fatalf("GetHelperByPhone: %v", err)
	}
	if !verified.PhoneVerified || verified.OTPHash != "" || verified.OTPExpiresAt != nil {
		t.Errorf("after verify: %+v", verified)
	}

	all, err := s.ListHelpers(ctx)
	if err != nil {
		t.Fatalf("ListHelpers: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListHelpers: got %d, want 1", len(all))
	}
}
