package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// Result is the outcome of one scheduled pass.
type Result struct {
	Summary Summary
	Err     error
	At      time.Time
}

// Syncer runs one full pass.
type Syncer interface {
	RunFullSync(ctx context.Context) (Summary, error)
}

// Scheduler runs passes on a fixed interval and on demand. Passes never
// overlap; triggers that arrive while a pass runs collapse into one.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
	trigger  chan struct{}
	listener func(Result)
}

// NewScheduler creates a scheduler. An interval of zero disables the timer,
// leaving only Trigger.
func NewScheduler(s Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer:   s,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// OnResult registers fn to be called after every pass. Must be set before Run.
func (s *Scheduler) OnResult(fn func(Result)) {
	s.listener = fn
}

// Trigger requests a pass as soon as possible. It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
		s.logger.Info("sync scheduler started", slog.Duration("interval", s.interval))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-s.trigger:
		}
		sum, err := s.syncer.RunFullSync(ctx)
		if s.listener != nil {
			s.listener(Result{Summary: sum, Err: err, At: time.Now()})
		}
	}
}
