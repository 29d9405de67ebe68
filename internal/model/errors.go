package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrRecipientBlocked marks a recipient that has blocked the bot. Dispatch
// counts these separately from transient failures and does not retry them.
var ErrRecipientBlocked = errors.New("recipient blocked the bot")

// HTTPError wraps an HTTP status code so fetch logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ChallengeError reports that a fetch returned an anti-bot interstitial
// instead of real page content. The attempt that produced it counts as a
// failure regardless of HTTP status.
type ChallengeError struct {
	Signature string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge page detected: %q", e.Signature)
}
