// Package pipeline moves observations from the scan source to the engine:
// one bounded queue, one consumer goroutine. All registry, resolver, and
// attendance work happens on the consumer, so observations for the same
// identifier are applied in arrival order without further locking.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ObservationHandler processes one observation end to end.
type ObservationHandler func(ctx context.Context, obs device.Observation) error

// SweepFunc runs the periodic absence sweep.
type SweepFunc func(ctx context.Context, now time.Time) error

// Config holds pipeline settings.
type Config struct {
	// QueueSize bounds the observation queue. A full queue blocks the
	// producer, which naturally throttles the scan source.
	QueueSize int

	// SweepInterval is how often the absence sweep runs. Zero disables it.
	SweepInterval time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Pipeline is the single-consumer observation pipeline.
type Pipeline struct {
	queue  chan device.Observation
	handle ObservationHandler
	sweep  SweepFunc
	logger *slog.Logger

	// pending counts observations accepted by Enqueue whose handler has not
	// returned yet. It covers both queued and in-flight work, so Flush has no
	// window where an accepted observation is invisible.
	pending atomic.Int64

	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New creates a pipeline. Start must be called before Enqueue.
func New(cfg Config, handle ObservationHandler, sweep SweepFunc) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		queue:  make(chan device.Observation, cfg.QueueSize),
		handle: handle,
		sweep:  sweep,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine and, when configured, the sweep
// ticker. The pipeline runs until Stop or ctx cancellation.
func (p *Pipeline) Start(ctx context.Context, sweepInterval time.Duration) {
	p.wg.Add(1)
	go p.consume(ctx)

	if p.sweep != nil && sweepInterval > 0 {
		p.wg.Add(1)
		go p.sweepLoop(ctx, sweepInterval)
	}
}

func (p *Pipeline) consume(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case obs := <-p.queue:
			if err := p.handle(ctx, obs); err != nil {
				p.logger.Error("observation handling failed",
					"identifier", obs.ID,
					"error", err,
				)
			}
			p.pending.Add(-1)
		}
	}
}

func (p *Pipeline) sweepLoop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := p.sweep(ctx, now); err != nil {
				p.logger.Error("absence sweep failed", "error", err)
			}
		}
	}
}

// Enqueue submits an observation. Blocks while the queue is full; fails once
// the pipeline is stopped or the context is cancelled.
func (p *Pipeline) Enqueue(ctx context.Context, obs device.Observation) error {
	select {
	case <-p.done:
		return shared.ErrClosed
	default:
	}

	// Counted before the hand-off: once Enqueue returns nil the observation
	// is visible to Flush until its handler has run.
	p.pending.Add(1)
	select {
	case p.queue <- obs:
		return nil
	case <-p.done:
		p.pending.Add(-1)
		return shared.ErrClosed
	case <-ctx.Done():
		p.pending.Add(-1)
		return ctx.Err()
	}
}

// Flush waits until every accepted observation has been handled. Used at
// session close so the close transitions never race a straggling entry.
func (p *Pipeline) Flush(ctx context.Context) error {
	for {
		if p.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Stop shuts the pipeline down and waits for the consumer to exit. Pending
// queue items are not processed; call Flush first for a clean close.
func (p *Pipeline) Stop() {
	p.stopped.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// QueueDepth reports the current number of queued observations.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}
