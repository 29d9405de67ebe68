package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/outbid/outbid/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStrategy returns canned results in sequence, then repeats the last one.
type fakeStrategy struct {
	name     string
	attempts int
	results  []fakeResult
	calls    int
}

type fakeResult struct {
	html string
	err  error
}

func (f *fakeStrategy) Name() string     { return f.name }
func (f *fakeStrategy) MaxAttempts() int { return f.attempts }

func (f *fakeStrategy) Fetch(_ context.Context, _ string) (string, string, error) {
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	r := f.results[idx]
	return r.html, f.name, r.err
}

func realPage() string {
	return "<html><body>" + strings.Repeat("<article>job</article>", 100) + "</body></html>"
}

func TestFetcherFirstStrategyWins(t *testing.T) {
	primary := &fakeStrategy{name: "solver", attempts: 1, results: []fakeResult{{html: realPage()}}}
	backup := &fakeStrategy{name: "unlocker", attempts: 1, results: []fakeResult{{html: realPage()}}}

	f := NewFetcher([]Strategy{primary, backup}, NewHealthTracker(2, nil, discardLogger()), 0, 0, discardLogger())
	html, err := f.Fetch(context.Background(), "https://example.com/jobs")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if html == "" {
		t.Fatal("expected HTML, got empty string")
	}
	if backup.calls != 0 {
		t.Errorf("backup strategy called %d times, want 0", backup.calls)
	}
}

func TestFetcherFallsThroughStrategies(t *testing.T) {
	primary := &fakeStrategy{name: "solver", attempts: 1, results: []fakeResult{{err: errors.New("timeout")}}}
	pool := &fakeStrategy{name: "bypass", attempts: 3, results: []fakeResult{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{html: realPage()},
	}}

	f := NewFetcher([]Strategy{primary, pool}, NewHealthTracker(5, nil, discardLogger()), 0, 0, discardLogger())
	if _, err := f.Fetch(context.Background(), "https://example.com/jobs"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if pool.calls != 3 {
		t.Errorf("pool calls = %d, want 3", pool.calls)
	}
}

func TestFetcherRejectsChallengePage(t *testing.T) {
	challenge := "<html><title>Challenge</title><body>Just a moment..." + strings.Repeat(" ", 2000) + "</body></html>"
	primary := &fakeStrategy{name: "solver", attempts: 2, results: []fakeResult{{html: challenge}}}

	f := NewFetcher([]Strategy{primary}, NewHealthTracker(5, nil, discardLogger()), 0, 0, discardLogger())
	_, err := f.Fetch(context.Background(), "https://example.com/jobs")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Fetch() error = %v, want ErrExhausted", err)
	}
	if primary.calls != 2 {
		t.Errorf("calls = %d, want 2 (challenge counts as a failed attempt)", primary.calls)
	}
}

func TestFetcherRejectsShortBody(t *testing.T) {
	primary := &fakeStrategy{name: "bypass", attempts: 1, results: []fakeResult{{html: "<html>error</html>"}}}

	f := NewFetcher([]Strategy{primary}, NewHealthTracker(5, nil, discardLogger()), 0, 0, discardLogger())
	if _, err := f.Fetch(context.Background(), "https://example.com/jobs"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Fetch() error = %v, want ErrExhausted", err)
	}
}

func TestFetcherExhausted(t *testing.T) {
	a := &fakeStrategy{name: "solver", attempts: 1, results: []fakeResult{{err: errors.New("down")}}}
	b := &fakeStrategy{name: "unlocker", attempts: 1, results: []fakeResult{{err: &model.HTTPError{StatusCode: 502}}}}

	f := NewFetcher([]Strategy{a, b}, NewHealthTracker(5, nil, discardLogger()), 0, 0, discardLogger())
	_, err := f.Fetch(context.Background(), "https://example.com/jobs")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Fetch() error = %v, want ErrExhausted", err)
	}
}

func TestFetcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &fakeStrategy{name: "solver", attempts: 3, results: []fakeResult{{err: errors.New("down")}}}
	f := NewFetcher([]Strategy{primary}, NewHealthTracker(5, nil, discardLogger()), 0, 0, discardLogger())
	if _, err := f.Fetch(ctx, "https://example.com/jobs"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	if primary.calls != 0 {
		t.Errorf("calls = %d, want 0 after cancel", primary.calls)
	}
}

func TestDetectChallenge(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"cloudflare title", "<html><title>Challenge Validation</title></html>", true},
		{"just a moment", "<html><body>Just a Moment...</body></html>", true},
		{"browser check", "<p>Checking your browser before accessing</p>", true},
		{"human check", "Please VERIFY YOU ARE HUMAN to continue", true},
		{"real page", "<html><body><article class=\"job-tile\">Go dev</article></body></html>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := DetectChallenge(tt.html); got != tt.want {
				t.Errorf("DetectChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeRecycler struct {
	recycled []string
}

func (f *fakeRecycler) Recycle(endpoint string) error {
	f.recycled = append(f.recycled, endpoint)
	return nil
}

func TestHealthTrackerRecyclesAtThreshold(t *testing.T) {
	rec := &fakeRecycler{}
	h := NewHealthTracker(2, rec, discardLogger())

	h.Failure("http://bypass-1:8080")
	if len(rec.recycled) != 0 {
		t.Fatalf("recycled after 1 failure, want threshold of 2")
	}
	h.Failure("http://bypass-1:8080")
	if len(rec.recycled) != 1 || rec.recycled[0] != "http://bypass-1:8080" {
		t.Fatalf("recycled = %v, want one recycle of bypass-1", rec.recycled)
	}
	if h.Failures("http://bypass-1:8080") != 0 {
		t.Errorf("failure streak not reset after recycle")
	}
}

func TestHealthTrackerSuccessResetsStreak(t *testing.T) {
	rec := &fakeRecycler{}
	h := NewHealthTracker(2, rec, discardLogger())

	h.Failure("http://bypass-1:8080")
	h.Success("http://bypass-1:8080")
	h.Failure("http://bypass-1:8080")
	if len(rec.recycled) != 0 {
		t.Errorf("recycled = %v, want none (streak broken by success)", rec.recycled)
	}
}

func TestBypassPoolRoundRobin(t *testing.T) {
	endpoints := []string{"http://a:8080", "http://b:8080", "http://c:8080"}
	p := NewBypassPool(endpoints, 3, nil)

	if p.MaxAttempts() != 9 {
		t.Fatalf("MaxAttempts() = %d, want 9", p.MaxAttempts())
	}
	for i := 0; i < 6; i++ {
		want := endpoints[i%3]
		if got := p.next(); got != want {
			t.Errorf("next() call %d = %q, want %q", i, got, want)
		}
	}
}

func TestBypassPoolDistribution(t *testing.T) {
	endpoints := []string{"http://a:8080", "http://b:8080"}
	p := NewBypassPool(endpoints, 3, nil)

	counts := make(map[string]int)
	for i := 0; i < 10; i++ {
		counts[p.next()]++
	}
	for _, e := range endpoints {
		if counts[e] != 5 {
			t.Errorf("endpoint %s served %d of 10 attempts, want 5", e, counts[e])
		}
	}
}
