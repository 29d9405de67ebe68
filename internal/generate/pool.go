package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// Result is the outcome of a draft request.
type Result struct {
	Text         string
	DraftCount   int  // drafts consumed so far, including this one
	LimitReached bool // ceiling hit, Text is empty and nothing was generated
}

// Pool runs generations with bounded concurrency and per-(subscriber, job)
// draft ceilings. Draft counters increment only after a successful
// generation, so a provider outage does not burn a subscriber's allowance.
type Pool struct {
	primary           Provider
	fallback          Provider // nil when no fallback is configured
	drafts            model.DraftStore
	maxTokens         int
	maxDrafts         int
	maxStrategyDrafts int
	timeout           time.Duration
	sem               chan struct{}
	logger            *slog.Logger
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Fallback          Provider
	MaxTokens         int
	Concurrency       int
	MaxDrafts         int
	MaxStrategyDrafts int
	Timeout           time.Duration
}

// NewPool creates a generation pool around the primary provider.
func NewPool(primary Provider, drafts model.DraftStore, opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.MaxDrafts <= 0 {
		opts.MaxDrafts = 3
	}
	if opts.MaxStrategyDrafts <= 0 {
		opts.MaxStrategyDrafts = 2
	}
	return &Pool{
		primary:           primary,
		fallback:          opts.Fallback,
		drafts:            drafts,
		maxTokens:         opts.MaxTokens,
		maxDrafts:         opts.MaxDrafts,
		maxStrategyDrafts: opts.MaxStrategyDrafts,
		timeout:           opts.Timeout,
		sem:               make(chan struct{}, opts.Concurrency),
		logger:            logger,
	}
}

// MaxDrafts returns the proposal rewrite ceiling.
func (g *Pool) MaxDrafts() int { return g.maxDrafts }

// MaxStrategyDrafts returns the strategy rewrite ceiling.
func (g *Pool) MaxStrategyDrafts() int { return g.maxStrategyDrafts }

// Proposal generates a cover letter for the posting. This is the initial
// per-alert generation and does not count against the draft ceiling.
func (g *Pool) Proposal(ctx context.Context, p model.Posting, s model.Subscriber) (string, error) {
	return g.generate(ctx, proposalSystemPrompt, proposalUserPrompt(p, s))
}

// Draft generates a proposal rewrite, consuming one draft. When the ceiling
// is already reached it returns LimitReached without calling a provider.
func (g *Pool) Draft(ctx context.Context, p model.Posting, s model.Subscriber) (Result, error) {
	return g.draft(ctx, p, s, false)
}

// StrategyDraft generates a bidding strategy, consuming one strategy draft.
func (g *Pool) StrategyDraft(ctx context.Context, p model.Posting, s model.Subscriber) (Result, error) {
	return g.draft(ctx, p, s, true)
}

func (g *Pool) draft(ctx context.Context, p model.Posting, s model.Subscriber, strategy bool) (Result, error) {
	counts, err := g.drafts.DraftCounts(s.ID, p.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load draft counts: %w", err)
	}

	used, limit := counts.Regular, g.maxDrafts
	systemPrompt, userPrompt := proposalSystemPrompt, proposalUserPrompt(p, s)
	if strategy {
		used, limit = counts.Strategy, g.maxStrategyDrafts
		systemPrompt, userPrompt = strategySystemPrompt, strategyUserPrompt(p, s)
	}
	if used >= limit {
		return Result{DraftCount: used, LimitReached: true}, nil
	}

	text, err := g.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, err
	}

	count, err := g.drafts.IncrementDraft(s.ID, p.ID, strategy)
	if err != nil {
		return Result{}, fmt.Errorf("record draft: %w", err)
	}
	return Result{Text: text, DraftCount: count}, nil
}

// generate acquires a concurrency slot and runs the primary provider, falling
// back to the secondary when the primary fails.
func (g *Pool) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	genCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.primary.Generate(genCtx, systemPrompt, userPrompt, g.maxTokens)
	if err == nil {
		return text, nil
	}
	if g.fallback == nil {
		return "", fmt.Errorf("%s: %w", g.primary.Name(), err)
	}

	g.logger.Warn("primary provider failed, trying fallback",
		"primary", g.primary.Name(),
		"fallback", g.fallback.Name(),
		"error", err)

	text, fbErr := g.fallback.Generate(genCtx, systemPrompt, userPrompt, g.maxTokens)
	if fbErr != nil {
		return "", fmt.Errorf("%s: %v; %s: %w", g.primary.Name(), err, g.fallback.Name(), fbErr)
	}
	return text, nil
}
