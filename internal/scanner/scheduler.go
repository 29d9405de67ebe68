package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// cleaner is the retention hook run after a successful cycle.
type cleaner interface {
	Cleanup(olderThan time.Duration) error
}

// Scheduler owns the main loop. Intervals are anchored to cycle start: a slow
// cycle shortens the following wait instead of drifting the schedule. A
// failed cycle waits the retry interval; the loop itself never exits except
// on context cancellation.
type Scheduler struct {
	scanner       *Scanner
	interval      time.Duration
	retryInterval time.Duration
	store         cleaner
	retention     time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a scheduler running the scanner on the given cadence.
// store may be nil to skip retention cleanup.
func NewScheduler(scanner *Scanner, interval, retryInterval time.Duration, store cleaner, retention time.Duration, logger *slog.Logger) *Scheduler {
	if retryInterval <= 0 {
		retryInterval = interval
	}
	return &Scheduler{
		scanner:       scanner,
		interval:      interval,
		retryInterval: retryInterval,
		store:         store,
		retention:     retention,
		logger:        logger,
	}
}

// Run starts the scan loop and returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "interval", s.interval.String())

	for {
		start := time.Now()
		wait := s.interval

		if err := s.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("shutting down scheduler")
				return nil
			}
			s.logger.Error("scan cycle failed", "error", err)
			wait = s.retryInterval
		} else if s.store != nil && s.retention > 0 {
			if err := s.store.Cleanup(s.retention); err != nil {
				s.logger.Error("cleanup failed", "error", err)
			}
		}

		// Anchor the next cycle to this cycle's start.
		if wait == s.interval {
			if elapsed := time.Since(start); elapsed < wait {
				wait -= elapsed
			} else {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(wait):
		}
	}
}

// runCycle guards one scan against panics so a bad page can never kill the
// loop.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	return s.scanner.Scan(ctx)
}
