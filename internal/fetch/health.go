package fetch

import (
	"log/slog"
	"sync"
)

// Recycler restarts the backing service for a degraded endpoint. Bypass
// servers run as containers, so recycling is typically a container restart.
type Recycler interface {
	Recycle(endpoint string) error
}

// HealthTracker counts consecutive failures per endpoint and triggers a
// recycle once an endpoint crosses the threshold. A success resets the
// counter, as does a recycle, so a flapping endpoint is recycled at most once
// per losing streak.
type HealthTracker struct {
	mu        sync.Mutex
	failures  map[string]int
	threshold int
	recycler  Recycler
	logger    *slog.Logger
}

// NewHealthTracker creates a tracker. recycler may be nil, in which case
// crossing the threshold only resets the counter.
func NewHealthTracker(threshold int, recycler Recycler, logger *slog.Logger) *HealthTracker {
	if threshold <= 0 {
		threshold = 2
	}
	return &HealthTracker{
		failures:  make(map[string]int),
		threshold: threshold,
		recycler:  recycler,
		logger:    logger,
	}
}

// Success clears the failure streak for endpoint.
func (h *HealthTracker) Success(endpoint string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, endpoint)
}

// Failure records a failed attempt against endpoint and recycles it once the
// streak reaches the threshold.
func (h *HealthTracker) Failure(endpoint string) {
	h.mu.Lock()
	h.failures[endpoint]++
	count := h.failures[endpoint]
	recycle := count >= h.threshold
	if recycle {
		h.failures[endpoint] = 0
	}
	h.mu.Unlock()

	if !recycle {
		return
	}
	h.logger.Warn("endpoint degraded, recycling",
		"endpoint", endpoint,
		"consecutive_failures", count)
	if h.recycler == nil {
		return
	}
	if err := h.recycler.Recycle(endpoint); err != nil {
		h.logger.Error("recycle failed", "endpoint", endpoint, "error", err)
	}
}

// Failures reports the current streak for endpoint.
func (h *HealthTracker) Failures(endpoint string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures[endpoint]
}
