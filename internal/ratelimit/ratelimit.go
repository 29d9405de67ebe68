package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// RecipientLimiter enforces a minimum delay between consecutive messages to
// the same recipient. Telegram throttles per-chat sends, so back-to-back
// alerts for one subscriber need spacing while sends to different
// subscribers proceed freely.
type RecipientLimiter struct {
	mu       sync.Mutex
	lastSend map[int64]time.Time
	minDelay time.Duration
}

// NewRecipientLimiter creates a limiter that enforces minDelay between
// consecutive sends to the same recipient.
func NewRecipientLimiter(minDelay time.Duration) *RecipientLimiter {
	return &RecipientLimiter{
		lastSend: make(map[int64]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last send to recipientID.
// Returns an error if the context is cancelled while waiting.
func (r *RecipientLimiter) Wait(ctx context.Context, recipientID int64) error {
	r.mu.Lock()
	last, ok := r.lastSend[recipientID]
	now := time.Now()

	if !ok {
		// First send to this recipient, no wait needed.
		r.lastSend[recipientID] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= r.minDelay {
		// Enough time has passed, proceed immediately.
		r.lastSend[recipientID] = now
		r.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := r.minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %d: %w", recipientID, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastSend[recipientID] = time.Now()
	r.mu.Unlock()

	return nil
}

// RateLimitedMessenger is a decorator that enforces per-recipient rate
// limiting before delegating to the wrapped Messenger.
type RateLimitedMessenger struct {
	inner   model.Messenger
	limiter *RecipientLimiter
}

// NewRateLimitedMessenger wraps a Messenger with per-recipient rate limiting.
// All senders targeting the same recipients should share the same limiter
// instance.
func NewRateLimitedMessenger(inner model.Messenger, limiter *RecipientLimiter) *RateLimitedMessenger {
	return &RateLimitedMessenger{
		inner:   inner,
		limiter: limiter,
	}
}

// Send waits for the rate limiter to allow a send, then delegates to the
// wrapped messenger.
func (m *RateLimitedMessenger) Send(ctx context.Context, recipientID int64, text string) error {
	if err := m.limiter.Wait(ctx, recipientID); err != nil {
		return err
	}
	return m.inner.Send(ctx, recipientID, text)
}
