// Package worker runs long-lived helper loops, typically sink.Listener
// instances, under a single start/stop lifecycle.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gaurav-seth/carenest-helper/backoff"
	"github.com/gaurav-seth/carenest-helper/id"
)

// Runner is a loop that runs until ctx is done. sink.Listener satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type namedRunner struct {
	name   string
	runner Runner
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRestart restarts a runner that returns an error, waiting s between
// attempts. Without it a failed runner stays stopped and its error is
// returned from Stop.
func WithRestart(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.restart = s }
}

// Pool supervises a set of runners.
type Pool struct {
	nodeID  id.NodeID
	logger  *slog.Logger
	restart backoff.Strategy

	mu      sync.Mutex
	runners []namedRunner
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	ctx     context.Context
}

// NewPool creates an empty pool.
func NewPool(logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{nodeID: id.NewNodeID(), logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NodeID identifies this pool's process in logs.
func (p *Pool) NodeID() id.NodeID { return p.nodeID }

// Add registers a runner. Runners added after Start are launched
// immediately.
func (p *Pool) Add(name string, r Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nr := namedRunner{name: name, runner: r}
	p.runners = append(p.runners, nr)
	if p.running {
		p.launch(nr)
	}
}

// Size returns the number of registered runners.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runners)
}

// Start launches every registered runner. It returns immediately and is a
// no-op on a running pool. Runners outlive ctx; Stop ends them.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.ctx, p.cancel = runCtx, cancel
	p.group = &errgroup.Group{}
	p.running = true

	p.logger.Info("helper pool starting",
		slog.String("node_id", p.nodeID.String()),
		slog.Int("runners", len(p.runners)),
	)
	for _, nr := range p.runners {
		p.launch(nr)
	}
	return nil
}

// launch must be called with p.mu held.
func (p *Pool) launch(nr namedRunner) {
	ctx := p.ctx
	p.group.Go(func() error {
		return p.supervise(ctx, nr)
	})
}

func (p *Pool) supervise(ctx context.Context, nr namedRunner) error {
	for attempt := 1; ; attempt++ {
		err := nr.runner.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			p.logger.Info("runner finished", slog.String("runner", nr.name))
			return nil
		}
		if p.restart == nil {
			p.logger.Error("runner failed",
				slog.String("runner", nr.name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("worker: runner %s: %w", nr.name, err)
		}

		delay := p.restart.Delay(attempt)
		p.logger.Warn("runner failed, restarting",
			slog.String("runner", nr.name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop cancels every runner and waits for them to return or ctx to end.
// It returns the first runner failure, if any.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, group := p.cancel, p.group
	p.mu.Unlock()

	p.logger.Info("helper pool stopping", slog.String("node_id", p.nodeID.String()))
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		p.logger.Info("helper pool stopped")
		return err
	case <-ctx.Done():
		p.logger.Warn("helper pool shutdown timed out")
		return ctx.Err()
	}
}
