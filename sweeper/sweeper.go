// Package sweeper runs periodic purges: expired idempotency records, idle
// rate-limit buckets and events past retention.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/taskapi/logging"
)

// DefaultInterval is how often a sweep runs when none is configured.
const DefaultInterval = time.Hour

// Sweepable purges entries that are stale as of now and reports how many
// went.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper calls its target's Sweep on a fixed interval.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	log      *logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sweeper. A non-positive interval means DefaultInterval. The
// logger is used as given, so callers set its component.
func New(target Sweepable, interval time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Start runs the sweep loop in the background until Stop or ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		s.Run(ctx)
	}(s.done)
}

// Run sweeps every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs the outcome.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.target.Sweep(ctx, s.now())
	if err != nil {
		s.log.Warn("sweep_failed", map[string]interface{}{"error": err})
		return n
	}
	if n > 0 {
		s.log.Info("sweep", map[string]interface{}{"removed": n})
	}
	return n
}

// Stop ends the loop and waits for it to exit or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnShutdown implements shutdown.ShutdownHandler.
func (s *Sweeper) OnShutdown(ctx context.Context) error {
	return s.Stop(ctx)
}
