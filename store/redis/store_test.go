package redis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	carenest "github.com/gaurav-seth/carenest-helper"
	"github.com/gaurav-seth/carenest-helper/id"
	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/store"
	"github.com/gaurav-seth/carenest-helper/store/redis"
	"github.com/gaurav-seth/carenest-helper/store/storetest"
)

func newStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := redis.New(client)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestClaimMovesJobBetweenIndexes(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	j := storetest.NewJob("+15550001", "loc-A")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if ok, _ := mr.SIsMember("carenest:jobs:assigned", j.ID.String()); ok {
		t.Fatal("new job already in assigned set")
	}

	res, err := s.ClaimJob(ctx, j.ID, "W1")
	if err != nil || res != job.ClaimWon {
		t.Fatalf("ClaimJob = %v, %v; want won", res, err)
	}

	open, err := mr.ZMembers("carenest:jobs:open")
	if err == nil && len(open) != 0 {
		t.Errorf("open index = %v, want empty", open)
	}
	if ok, _ := mr.SIsMember("carenest:jobs:assigned", j.ID.String()); !ok {
		t.Error("claimed job missing from assigned set")
	}
	if got := mr.HGet("carenest:job:"+j.ID.String(), "assigned_worker_ref"); got != "W1" {
		t.Errorf("assigned_worker_ref = %q, want W1", got)
	}
}

func TestClaimWithoutMigrate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := redis.New(client)

	// Script.Run falls back to EVAL when the script is not cached.
	if _, err := s.ClaimJob(context.Background(), id.NewJobID(), "W1"); !errors.Is(err, carenest.ErrJobNotFound) {
		t.Fatalf("ClaimJob unknown job: got %v, want ErrJobNotFound", err)
	}
}
