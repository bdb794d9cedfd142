package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gaurav-seth/carenest-helper/store"
)

const (
	prefix         = "/carenest/"
	jobsPrefix     = prefix + "jobs/"
	patientsPrefix = prefix + "patients/"
	helpersPrefix  = prefix + "helpers/"
)

// maxTxnRetries bounds optimistic upsert loops under contention.
const maxTxnRetries = 16

var _ store.Store = (*Store)(nil)

// Store is an etcd implementation of store.Store.
type Store struct {
	client *clientv3.Client
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps an existing client. The caller owns it.
func New(client *clientv3.Client, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials the endpoints. Close closes the client.
func Open(endpoints []string, dialTimeout time.Duration, opts ...Option) (*Store, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("carenest/etcd: connect: %w", err)
	}
	s := New(client, opts...)
	s.owned = true
	return s, nil
}

// Client returns the underlying etcd client.
func (s *Store) Client() *clientv3.Client { return s.client }

// Migrate is a no-op; etcd is schemaless.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping reads a key to confirm a quorum is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.Get(ctx, prefix+"ping", clientv3.WithCountOnly()); err != nil {
		return fmt.Errorf("carenest/etcd: ping: %w", err)
	}
	return nil
}

// Close closes the client if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func encode(v any) (string, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
