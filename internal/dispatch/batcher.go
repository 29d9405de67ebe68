// Package dispatch fans prepared messages out to a messenger in rate-limited
// batches, keeping the send rate under the transport's ceiling.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// Prepared is one message ready to send.
type Prepared struct {
	SubscriberID int64
	JobID        string
	Kind         model.AlertKind
	Text         string
}

// Stats summarizes one dispatch run.
type Stats struct {
	Sent    int
	Failed  int
	Blocked int
}

// Batcher sends prepared messages in fixed-size batches with a pause between
// batches. Sends within a batch run concurrently. Each delivered or blocked
// message gets a ledger row; transient failures get none, so the next cycle
// reflects only what actually went out.
type Batcher struct {
	messenger  model.Messenger
	ledger     model.LedgerStore
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger
}

// NewBatcher creates a batcher.
func NewBatcher(messenger model.Messenger, ledger model.LedgerStore, batchSize int, batchDelay time.Duration, logger *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Batcher{
		messenger:  messenger,
		ledger:     ledger,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		logger:     logger,
	}
}

// DispatchAll sends every prepared message and returns aggregate stats.
// Cancellation stops between batches; an in-flight batch always completes.
func (b *Batcher) DispatchAll(ctx context.Context, messages []Prepared) (Stats, error) {
	var stats Stats
	for start := 0; start < len(messages); start += b.batchSize {
		if start > 0 {
			if err := sleep(ctx, b.batchDelay); err != nil {
				return stats, err
			}
		}
		end := start + b.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		bs := b.sendBatch(ctx, messages[start:end])
		stats.Sent += bs.Sent
		stats.Failed += bs.Failed
		stats.Blocked += bs.Blocked
	}

	b.logger.Info("dispatch complete",
		"total", len(messages),
		"sent", stats.Sent,
		"failed", stats.Failed,
		"blocked", stats.Blocked)
	return stats, nil
}

func (b *Batcher) sendBatch(ctx context.Context, batch []Prepared) Stats {
	var (
		mu    sync.Mutex
		stats Stats
		wg    sync.WaitGroup
	)
	for _, msg := range batch {
		wg.Add(1)
		go func(msg Prepared) {
			defer wg.Done()
			err := b.messenger.Send(ctx, msg.SubscriberID, msg.Text)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Sent++
				b.recordAlert(msg)
			case errors.Is(err, model.ErrRecipientBlocked):
				stats.Blocked++
				b.logger.Warn("recipient blocked", "subscriber_id", msg.SubscriberID)
				b.recordAlert(msg)
			default:
				stats.Failed++
				b.logger.Error("send failed",
					"subscriber_id", msg.SubscriberID,
					"job_id", msg.JobID,
					"error", err)
			}
		}(msg)
	}
	wg.Wait()
	return stats
}

func (b *Batcher) recordAlert(msg Prepared) {
	if err := b.ledger.RecordAlert(msg.JobID, msg.SubscriberID, msg.Kind); err != nil {
		b.logger.Error("record alert failed",
			"subscriber_id", msg.SubscriberID,
			"job_id", msg.JobID,
			"error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
