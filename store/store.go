package store

import (
	"context"

	"github.com/gaurav-seth/carenest-helper/job"
	"github.com/gaurav-seth/carenest-helper/participant"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface and a single backend
// (memory, postgres, bun, sqlite, redis, mongo, etcd) implements all of them.
type Store interface {
	job.Store
	participant.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
