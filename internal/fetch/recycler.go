package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPRecycler restarts a bypass server through its control endpoint. The
// servers expose POST /restart, which tears down the browser session and
// brings up a fresh one.
type HTTPRecycler struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPRecycler creates a recycler with the given request timeout.
func NewHTTPRecycler(client *http.Client, timeout time.Duration) *HTTPRecycler {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRecycler{client: client, timeout: timeout}
}

// Recycle asks endpoint to restart itself.
func (r *HTTPRecycler) Recycle(endpoint string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/restart", nil)
	if err != nil {
		return fmt.Errorf("build restart request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("restart %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("restart %s: HTTP %d", endpoint, resp.StatusCode)
	}
	return nil
}
