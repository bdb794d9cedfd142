package carenest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Option configures a Hub.
type Option func(*Hub) error

// Storer is the minimal store interface held by the Hub.
// It covers lifecycle operations only. Subsystem layers use the full
// composite interface (store.Store), which embeds every subsystem store.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for listener pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Hub is the process-wide owner of the store, the event bus, the embedded
// helper pool, and the extension registry.
//
// Create one with New() and functional options. Subsystem components are
// held through small interfaces so this package never imports them; the
// engine package wires everything together.
type Hub struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	bus        io.Closer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a new Hub with the given options.
func New(opts ...Option) (*Hub, error) {
	h := &Hub{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Logger returns the hub's logger.
func (h *Hub) Logger() *slog.Logger { return h.logger }

// Store returns the hub's store.
func (h *Hub) Store() Storer { return h.store }

// Bus returns the hub's event bus.
func (h *Hub) Bus() io.Closer { return h.bus }

// Config returns a copy of the hub's configuration.
func (h *Hub) Config() Config { return h.config }

// SetPool sets the embedded helper pool (called by the engine package).
func (h *Hub) SetPool(p poolRunner) { h.pool = p }

// SetExtensions sets the extension emitter (called by the engine package).
func (h *Hub) SetExtensions(e extensionEmitter) { h.extensions = e }

// Start starts the embedded helper pool, if one is configured.
func (h *Hub) Start(ctx context.Context) error {
	if h.store == nil {
		return ErrNoStore
	}
	if h.pool == nil {
		return nil
	}
	if err := h.pool.Start(ctx); err != nil {
		return err
	}
	h.started = true
	return nil
}

// Stop gracefully shuts down the pool, then the bus, then the store.
func (h *Hub) Stop(ctx context.Context) error {
	if h.pool != nil && h.started {
		if err := h.pool.Stop(ctx); err != nil {
			h.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		h.started = false
	}
	if h.extensions != nil {
		h.extensions.EmitShutdown(ctx)
	}
	var errs []error
	if h.bus != nil {
		if err := h.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithConfig replaces the hub's configuration.
func WithConfig(cfg Config) Option {
	return func(h *Hub) error {
		h.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the hub.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) error {
		h.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the hub.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(h *Hub) error {
		if s == nil {
			return ErrNoStore
		}
		h.store = s
		return nil
	}
}

// WithBus sets the event bus the hub closes on shutdown.
func WithBus(b io.Closer) Option {
	return func(h *Hub) error {
		if b == nil {
			return ErrNoBus
		}
		h.bus = b
		return nil
	}
}

// WithClaimTimeout sets the per-claim store deadline.
func WithClaimTimeout(d time.Duration) Option {
	return func(h *Hub) error {
		h.config.ClaimTimeout = d
		return nil
	}
}

// WithRequireKnownHelpers rejects claims from unregistered helpers.
func WithRequireKnownHelpers(v bool) Option {
	return func(h *Hub) error {
		h.config.RequireKnownHelpers = v
		return nil
	}
}
