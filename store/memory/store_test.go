package memory_test

import (
	"context"
	"errors"
	"testing"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/store"
	"github.com/gaurav-seth/carenest-helper/store/memory"
	"github.com/gaurav-seth/carenest-helper/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Ping", func() error { return s.Ping(ctx) }},
		{"CreateJob", func() error { return s.CreateJob(ctx, storetest.NewJob("r", "l")) }},
		{"ClaimJob", func() error {
			_, err := s.ClaimJob(ctx, storetest.NewJob("r", "l").ID, "w")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, carenest.ErrStoreClosed) {
				t.Fatalf("got %v, want ErrStoreClosed", err)
			}
		})
	}
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()
	j := storetest.NewJob("r", "loc")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	open, err := s.ListOpenJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListOpenJobs: %v", err)
	}
	if _, err := s.ClaimJob(ctx, j.ID, "W1"); err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if !open[0].IsOpen() {
		t.Error("earlier snapshot must not observe the claim")
	}
	j.Location = "mutated"
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Location != "loc" {
		t.Errorf("store aliased caller's job: location %q", got.Location)
	}
}
