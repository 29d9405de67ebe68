// Package alert turns a fresh posting into per-subscriber messages: full
// proposals for entitled subscribers, gated placeholders for limited ones.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/outbid/outbid/internal/dispatch"
	"github.com/outbid/outbid/internal/entitlement"
	"github.com/outbid/outbid/internal/filter"
	"github.com/outbid/outbid/internal/generate"
	"github.com/outbid/outbid/internal/model"
)

// ErrNoCredits is returned by Reveal when the subscriber has no credits left
// and the job has not been revealed before.
var ErrNoCredits = errors.New("no reveal credits remaining")

// Nudger schedules a delayed upgrade reminder and cancels it once the
// subscriber no longer needs one.
type Nudger interface {
	Schedule(subscriberID int64)
	Cancel(subscriberID int64)
}

// Pipeline prepares alert messages for one posting at a time. Generation runs
// per subscriber concurrently; the generation pool bounds how many provider
// calls are actually in flight.
type Pipeline struct {
	subscribers model.SubscriberStore
	gate        *entitlement.Gate
	pool        *generate.Pool
	reveals     model.RevealStore
	postings    model.PostingStore
	nudger      Nudger
	logger      *slog.Logger
}

// NewPipeline wires the alert pipeline. nudger may be nil to disable upgrade
// reminders.
func NewPipeline(subscribers model.SubscriberStore, gate *entitlement.Gate, pool *generate.Pool,
	reveals model.RevealStore, postings model.PostingStore, nudger Nudger, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		subscribers: subscribers,
		gate:        gate,
		pool:        pool,
		reveals:     reveals,
		postings:    postings,
		nudger:      nudger,
		logger:      logger,
	}
}

// Prepare builds the messages for posting p across every eligible subscriber.
// A subscriber whose proposal generation fails is skipped entirely; they will
// not receive a degraded alert.
func (pl *Pipeline) Prepare(ctx context.Context, p model.Posting) ([]dispatch.Prepared, error) {
	subs, err := pl.subscribers.Subscribers()
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	now := time.Now()
	var eligible []model.Subscriber
	for _, s := range subs {
		if filter.Matches(p, s, now) {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	pl.logger.Info("posting matched",
		"job_id", p.ID,
		"title", p.Title,
		"eligible", len(eligible),
		"total", len(subs))

	var (
		mu       sync.Mutex
		prepared []dispatch.Prepared
		wg       sync.WaitGroup
	)
	for _, s := range eligible {
		wg.Add(1)
		go func(s model.Subscriber) {
			defer wg.Done()
			msg, ok := pl.prepareOne(ctx, p, s)
			if !ok {
				return
			}
			mu.Lock()
			prepared = append(prepared, msg)
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	return prepared, nil
}

func (pl *Pipeline) prepareOne(ctx context.Context, p model.Posting, s model.Subscriber) (dispatch.Prepared, bool) {
	if pl.gate.Entitled(s) {
		// An upgrade reminder pending from an earlier placeholder is obsolete.
		if pl.nudger != nil {
			pl.nudger.Cancel(s.ID)
		}
		text, err := pl.pool.Proposal(ctx, p, s)
		if err != nil {
			pl.logger.Error("proposal generation failed, skipping subscriber",
				"subscriber_id", s.ID,
				"job_id", p.ID,
				"error", err)
			return dispatch.Prepared{}, false
		}
		return dispatch.Prepared{
			SubscriberID: s.ID,
			JobID:        p.ID,
			Kind:         model.AlertProposal,
			Text:         formatProposal(p, text),
		}, true
	}

	// Limited subscriber: an earlier reveal of this job is resent in full.
	if stored, ok, err := pl.reveals.RevealedProposal(s.ID, p.ID); err != nil {
		pl.logger.Error("revealed lookup failed", "subscriber_id", s.ID, "error", err)
	} else if ok {
		return dispatch.Prepared{
			SubscriberID: s.ID,
			JobID:        p.ID,
			Kind:         model.AlertProposal,
			Text:         formatProposal(p, stored),
		}, true
	}

	credits, err := pl.reveals.RevealCredits(s.ID)
	if err != nil {
		pl.logger.Error("credit lookup failed", "subscriber_id", s.ID, "error", err)
		credits = 0
	}
	// The upgrade reminder targets subscribers with nothing left to spend.
	if pl.nudger != nil && credits == 0 {
		pl.nudger.Schedule(s.ID)
	}
	return dispatch.Prepared{
		SubscriberID: s.ID,
		JobID:        p.ID,
		Kind:         model.AlertPlaceholder,
		Text:         formatPlaceholder(p, credits),
	}, true
}

// Reveal spends one credit to show the full proposal for a previously alerted
// job. Revealing the same job twice never double-charges; under concurrent
// reveals exactly one debit lands and every caller gets the stored text.
func (pl *Pipeline) Reveal(ctx context.Context, subscriberID int64, jobID string) (string, error) {
	if stored, ok, err := pl.reveals.RevealedProposal(subscriberID, jobID); err != nil {
		return "", fmt.Errorf("revealed lookup: %w", err)
	} else if ok {
		return stored, nil
	}

	// No credits means no provider call; the guarded debit below is the
	// authoritative check, this one just keeps zero-credit reveals free.
	credits, err := pl.reveals.RevealCredits(subscriberID)
	if err != nil {
		return "", fmt.Errorf("credit lookup: %w", err)
	}
	if credits <= 0 {
		return "", ErrNoCredits
	}

	sub, ok, err := pl.subscribers.SubscriberByID(subscriberID)
	if err != nil {
		return "", fmt.Errorf("load subscriber: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("unknown subscriber %d", subscriberID)
	}
	p, ok, err := pl.postings.PostingByID(jobID)
	if err != nil {
		return "", fmt.Errorf("load posting: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("unknown job %s", jobID)
	}

	text, err := pl.pool.Proposal(ctx, p, sub)
	if err != nil {
		return "", fmt.Errorf("generate proposal: %w", err)
	}

	granted, err := pl.reveals.DebitRevealCredit(subscriberID, jobID, text)
	if err != nil {
		return "", fmt.Errorf("debit credit: %w", err)
	}
	if !granted {
		// Lost the last credit to a concurrent reveal; if that reveal was for
		// this same job the stored text costs nothing.
		if stored, ok, err := pl.reveals.RevealedProposal(subscriberID, jobID); err == nil && ok {
			return stored, nil
		}
		return "", ErrNoCredits
	}

	// A concurrent reveal may have landed first; the stored text is canonical.
	stored, ok, err := pl.reveals.RevealedProposal(subscriberID, jobID)
	if err == nil && ok {
		return stored, nil
	}
	return text, nil
}

// Draft produces a proposal rewrite, or the limit message once the ceiling is
// reached.
func (pl *Pipeline) Draft(ctx context.Context, subscriberID int64, jobID string) (string, error) {
	return pl.draft(ctx, subscriberID, jobID, false)
}

// StrategyDraft produces a bidding strategy, with its own ceiling.
func (pl *Pipeline) StrategyDraft(ctx context.Context, subscriberID int64, jobID string) (string, error) {
	return pl.draft(ctx, subscriberID, jobID, true)
}

func (pl *Pipeline) draft(ctx context.Context, subscriberID int64, jobID string, strategy bool) (string, error) {
	sub, ok, err := pl.subscribers.SubscriberByID(subscriberID)
	if err != nil {
		return "", fmt.Errorf("load subscriber: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("unknown subscriber %d", subscriberID)
	}
	p, ok, err := pl.postings.PostingByID(jobID)
	if err != nil {
		return "", fmt.Errorf("load posting: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("unknown job %s", jobID)
	}

	var res generate.Result
	if strategy {
		res, err = pl.pool.StrategyDraft(ctx, p, sub)
	} else {
		res, err = pl.pool.Draft(ctx, p, sub)
	}
	if err != nil {
		return "", err
	}
	if res.LimitReached {
		limit := pl.pool.MaxDrafts()
		if strategy {
			limit = pl.pool.MaxStrategyDrafts()
		}
		return formatDraftLimit(limit), nil
	}
	return res.Text, nil
}

// NudgeText is the message the nudge scheduler delivers when it fires.
func NudgeText() string {
	return formatUpgradeNudge()
}
