package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/outbid/outbid/internal/model"
)

// BypassPool fetches pages through a pool of self-hosted bypass servers,
// rotating round-robin so load spreads evenly and a dead server does not
// absorb every attempt.
type BypassPool struct {
	endpoints   []string
	maxAttempts int
	cursor      atomic.Uint64
	client      *http.Client
}

// NewBypassPool creates a pool over the given endpoints. attemptsPerEndpoint
// bounds how many attempts the fetcher grants this strategy per cycle,
// multiplied by the pool size.
func NewBypassPool(endpoints []string, attemptsPerEndpoint int, client *http.Client) *BypassPool {
	if client == nil {
		client = http.DefaultClient
	}
	if attemptsPerEndpoint <= 0 {
		attemptsPerEndpoint = 3
	}
	return &BypassPool{
		endpoints:   endpoints,
		maxAttempts: attemptsPerEndpoint * len(endpoints),
		client:      client,
	}
}

func (p *BypassPool) Name() string { return "bypass" }

func (p *BypassPool) MaxAttempts() int { return p.maxAttempts }

// next returns the endpoint for this attempt, advancing the cursor.
func (p *BypassPool) next() string {
	n := p.cursor.Add(1) - 1
	return p.endpoints[n%uint64(len(p.endpoints))]
}

// Fetch asks the next bypass server to render targetURL and returns the HTML
// along with the endpoint used, so the caller can attribute the outcome.
func (p *BypassPool) Fetch(ctx context.Context, targetURL string) (string, string, error) {
	endpoint := p.next()

	reqURL := fmt.Sprintf("%s/fetch?url=%s", endpoint, url.QueryEscape(targetURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", endpoint, fmt.Errorf("build bypass request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", endpoint, fmt.Errorf("bypass %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", endpoint, fmt.Errorf("read bypass response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", endpoint, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("bypass %s", endpoint),
		}
	}

	return string(body), endpoint, nil
}
