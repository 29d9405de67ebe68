package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/outbid/outbid/internal/model"
)

// Unlocker fetches pages through a hosted unlocking proxy. It is the last
// strategy in the chain: reliable but metered, so it only runs when the
// cheaper strategies are exhausted.
type Unlocker struct {
	baseURL string
	apiKey  string
	zone    string
	client  *http.Client
}

// NewUnlocker creates an unlocker strategy.
func NewUnlocker(baseURL, apiKey, zone string, client *http.Client) *Unlocker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Unlocker{baseURL: baseURL, apiKey: apiKey, zone: zone, client: client}
}

func (u *Unlocker) Name() string { return "unlocker" }

func (u *Unlocker) MaxAttempts() int { return 1 }

type unlockerRequest struct {
	Zone   string `json:"zone"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

type unlockerResponse struct {
	Body string `json:"body"`
}

// Fetch requests targetURL through the unlocker zone and returns the rendered
// body.
func (u *Unlocker) Fetch(ctx context.Context, targetURL string) (string, string, error) {
	payload, err := json.Marshal(unlockerRequest{Zone: u.zone, URL: targetURL, Format: "json"})
	if err != nil {
		return "", u.baseURL, fmt.Errorf("marshal unlocker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/request", bytes.NewReader(payload))
	if err != nil {
		return "", u.baseURL, fmt.Errorf("build unlocker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", u.baseURL, fmt.Errorf("unlocker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", u.baseURL, &model.HTTPError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unlocker")}
	}

	var out unlockerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", u.baseURL, fmt.Errorf("decode unlocker response: %w", err)
	}
	if out.Body == "" {
		return "", u.baseURL, fmt.Errorf("unlocker returned empty body")
	}

	return out.Body, u.baseURL, nil
}
