// Package nudge schedules delayed upgrade reminders. A nudge fires once per
// schedule; cancelling (because the subscriber upgraded, or the daemon is
// shutting down) and firing are mutually exclusive.
package nudge

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler holds at most one pending nudge per subscriber. Scheduling while
// one is pending resets the timer rather than stacking reminders.
type Scheduler struct {
	mu      sync.Mutex
	pending map[int64]*time.Timer
	delay   time.Duration
	fire    func(subscriberID int64)
	logger  *slog.Logger
}

// NewScheduler creates a scheduler that calls fire after delay for each
// scheduled subscriber.
func NewScheduler(delay time.Duration, fire func(subscriberID int64), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[int64]*time.Timer),
		delay:   delay,
		fire:    fire,
		logger:  logger,
	}
}

// Schedule arms (or re-arms) the nudge timer for subscriberID.
func (s *Scheduler) Schedule(subscriberID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[subscriberID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		// Only fire if this exact timer is still the pending one; a concurrent
		// Cancel or re-Schedule wins. A stopped timer that already fired must
		// not disarm its replacement.
		s.mu.Lock()
		armed := s.pending[subscriberID] == timer
		if armed {
			delete(s.pending, subscriberID)
		}
		s.mu.Unlock()
		if !armed {
			return
		}
		s.logger.Debug("nudge firing", "subscriber_id", subscriberID)
		s.fire(subscriberID)
	})
	s.pending[subscriberID] = timer
}

// Cancel drops any pending nudge for subscriberID.
func (s *Scheduler) Cancel(subscriberID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.pending[subscriberID]; ok {
		timer.Stop()
		delete(s.pending, subscriberID)
	}
}

// Pending reports whether a nudge is armed for subscriberID.
func (s *Scheduler) Pending(subscriberID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[subscriberID]
	return ok
}

// Stop cancels every pending nudge.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
