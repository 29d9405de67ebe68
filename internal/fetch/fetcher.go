package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// ErrExhausted is returned when every strategy has used up its attempts
// without producing a usable page.
var ErrExhausted = errors.New("all fetch strategies exhausted")

// Strategy is one way of obtaining a protected page. Fetch returns the raw
// HTML and the endpoint that served the attempt, so failures can be
// attributed to a specific server.
type Strategy interface {
	Name() string
	MaxAttempts() int
	Fetch(ctx context.Context, targetURL string) (html string, endpoint string, err error)
}

// Fetcher walks an ordered list of strategies, granting each its attempt
// budget before moving on. Every attempt's result is validated centrally: a
// challenge page or an implausibly short body counts as a failure even when
// the strategy reported success.
type Fetcher struct {
	strategies     []Strategy
	health         *HealthTracker
	attemptTimeout time.Duration
	retryDelay     time.Duration
	logger         *slog.Logger
}

// NewFetcher creates a fetcher over the given strategies, tried in order.
func NewFetcher(strategies []Strategy, health *HealthTracker, attemptTimeout, retryDelay time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		strategies:     strategies,
		health:         health,
		attemptTimeout: attemptTimeout,
		retryDelay:     retryDelay,
		logger:         logger,
	}
}

// Fetch retrieves targetURL, falling through strategies until one yields a
// real page or everything is exhausted.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	for _, strategy := range f.strategies {
		for attempt := 1; attempt <= strategy.MaxAttempts(); attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}

			html, endpoint, err := f.attempt(ctx, strategy, targetURL)
			if err == nil {
				f.health.Success(endpoint)
				f.logger.Info("page fetched",
					"strategy", strategy.Name(),
					"endpoint", endpoint,
					"attempt", attempt,
					"bytes", len(html))
				return html, nil
			}

			f.health.Failure(endpoint)
			f.logger.Warn("fetch attempt failed",
				"strategy", strategy.Name(),
				"endpoint", endpoint,
				"attempt", attempt,
				"max_attempts", strategy.MaxAttempts(),
				"error", err)

			if attempt < strategy.MaxAttempts() {
				if err := sleep(ctx, f.retryDelay); err != nil {
					return "", err
				}
			}
		}
	}
	return "", ErrExhausted
}

// attempt runs one strategy attempt under the per-attempt timeout and
// validates the result.
func (f *Fetcher) attempt(ctx context.Context, strategy Strategy, targetURL string) (string, string, error) {
	attemptCtx := ctx
	if f.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()
	}

	html, endpoint, err := strategy.Fetch(attemptCtx, targetURL)
	if err != nil {
		return "", endpoint, err
	}
	if sig, ok := DetectChallenge(html); ok {
		return "", endpoint, &model.ChallengeError{Signature: sig}
	}
	if len(html) < minContentLength {
		return "", endpoint, fmt.Errorf("response too short: %d bytes", len(html))
	}
	return html, endpoint, nil
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
