package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/outbid/outbid/internal/entitlement"
	"github.com/outbid/outbid/internal/generate"
	"github.com/outbid/outbid/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu          sync.Mutex
	subscribers []model.Subscriber
	postings    map[string]model.Posting
	credits     map[int64]int
	revealed    map[string]string
	drafts      map[string]model.DraftCounts
	downgraded  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		postings: make(map[string]model.Posting),
		credits:  make(map[int64]int),
		revealed: make(map[string]string),
		drafts:   make(map[string]model.DraftCounts),
	}
}

func revealKey(subscriberID int64, jobID string) string {
	return fmt.Sprintf("%d#%s", subscriberID, jobID)
}

func (f *fakeStore) Subscribers() ([]model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribers, nil
}

func (f *fakeStore) SubscriberByID(id int64) (model.Subscriber, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers {
		if s.ID == id {
			return s, true, nil
		}
	}
	return model.Subscriber{}, false, nil
}

func (f *fakeStore) DowngradeToScout(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downgraded = append(f.downgraded, id)
	return nil
}

func (f *fakeStore) PostingByID(jobID string) (model.Posting, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.postings[jobID]
	return p, ok, nil
}

func (f *fakeStore) SavePosting(p model.Posting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postings[p.ID] = p
	return nil
}

func (f *fakeStore) RevealCredits(subscriberID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[subscriberID], nil
}

func (f *fakeStore) DebitRevealCredit(subscriberID int64, jobID, proposalText string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.revealed[revealKey(subscriberID, jobID)]; ok {
		return true, nil
	}
	if f.credits[subscriberID] <= 0 {
		return false, nil
	}
	f.credits[subscriberID]--
	f.revealed[revealKey(subscriberID, jobID)] = proposalText
	return true, nil
}

func (f *fakeStore) RevealedProposal(subscriberID int64, jobID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.revealed[revealKey(subscriberID, jobID)]
	return text, ok, nil
}

func (f *fakeStore) DraftCounts(subscriberID int64, jobID string) (model.DraftCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[revealKey(subscriberID, jobID)], nil
}

func (f *fakeStore) IncrementDraft(subscriberID int64, jobID string, strategy bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.drafts[revealKey(subscriberID, jobID)]
	if strategy {
		c.Strategy++
	} else {
		c.Regular++
	}
	f.drafts[revealKey(subscriberID, jobID)] = c
	if strategy {
		return c.Strategy, nil
	}
	return c.Regular, nil
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(context.Context, string, string, int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNudger struct {
	mu        sync.Mutex
	scheduled []int64
	cancelled []int64
}

func (f *fakeNudger) Schedule(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, id)
}

func (f *fakeNudger) Cancel(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
}

func futureTime() *time.Time {
	t := time.Now().Add(30 * 24 * time.Hour)
	return &t
}

func newTestPipeline(store *fakeStore, provider generate.Provider, nudger Nudger) *Pipeline {
	gate := entitlement.NewGate(nil, false, store, discardLogger())
	pool := generate.NewPool(provider, store, generate.PoolOptions{
		MaxDrafts:         3,
		MaxStrategyDrafts: 2,
	}, discardLogger())
	return NewPipeline(store, gate, pool, store, store, nudger, discardLogger())
}

var job = model.Posting{
	ID:       "job-1",
	Title:    "Build a Go scraper",
	Link:     "https://example.com/jobs/job-1",
	RateType: model.RateHourly, BudgetMin: 25, BudgetMax: 50,
}

func TestPrepareSplitsByEntitlement(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 1, Plan: "hunter", PlanExpiry: futureTime(), MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
		{ID: 2, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
	}
	store.credits[2] = 3
	nudger := &fakeNudger{}
	pl := newTestPipeline(store, &fakeProvider{text: "Hello client"}, nudger)

	msgs, err := pl.Prepare(context.Background(), job)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	byID := map[int64]string{}
	kinds := map[int64]model.AlertKind{}
	for _, m := range msgs {
		byID[m.SubscriberID] = m.Text
		kinds[m.SubscriberID] = m.Kind
	}
	if kinds[1] != model.AlertProposal || !strings.Contains(byID[1], "Hello client") {
		t.Errorf("entitled subscriber message = %q kind=%s", byID[1], kinds[1])
	}
	if kinds[2] != model.AlertPlaceholder || strings.Contains(byID[2], "Hello client") {
		t.Errorf("limited subscriber must not see the proposal: %q", byID[2])
	}
	if !strings.Contains(byID[2], "3 credit") {
		t.Errorf("placeholder should mention remaining credits: %q", byID[2])
	}
	// A subscriber holding credits gets no upgrade reminder; the entitled one
	// has any stale reminder dropped.
	if len(nudger.scheduled) != 0 {
		t.Errorf("nudges scheduled = %v, want none while credits remain", nudger.scheduled)
	}
	if len(nudger.cancelled) != 1 || nudger.cancelled[0] != 1 {
		t.Errorf("nudges cancelled = %v, want [1]", nudger.cancelled)
	}
}

func TestPrepareNudgesOnlyCreditlessSubscribers(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 2, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
		{ID: 3, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
	}
	store.credits[2] = 0
	store.credits[3] = 2
	nudger := &fakeNudger{}
	pl := newTestPipeline(store, &fakeProvider{text: "x"}, nudger)

	if _, err := pl.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(nudger.scheduled) != 1 || nudger.scheduled[0] != 2 {
		t.Errorf("nudges scheduled = %v, want [2]", nudger.scheduled)
	}
}

func TestPrepareSkipsNonMatching(t *testing.T) {
	until := time.Now().Add(time.Hour)
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 1, Plan: model.PlanScout, PausedUntil: &until, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
		{ID: 2, Plan: model.PlanScout, Keywords: []string{"wordpress"}, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate},
		{ID: 3, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate},
	}
	pl := newTestPipeline(store, &fakeProvider{text: "x"}, nil)

	msgs, err := pl.Prepare(context.Background(), job)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 (paused, keyword miss, keywordless unflagged)", len(msgs))
	}
}

func TestPrepareSkipsSubscriberOnGenerationFailure(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 1, Plan: "hunter", PlanExpiry: futureTime(), MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
	}
	pl := newTestPipeline(store, &fakeProvider{err: errors.New("provider down")}, nil)

	msgs, err := pl.Prepare(context.Background(), job)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 (failed generation skips subscriber)", len(msgs))
	}
}

func TestPrepareResendsRevealedProposal(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 2, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate, MatchAll: true},
	}
	store.revealed[revealKey(2, job.ID)] = "previously revealed text"
	pl := newTestPipeline(store, &fakeProvider{text: "fresh"}, nil)

	msgs, err := pl.Prepare(context.Background(), job)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Kind != model.AlertProposal || !strings.Contains(msgs[0].Text, "previously revealed text") {
		t.Errorf("message = %+v, want the stored proposal", msgs[0])
	}
}

func TestReveal(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 2, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate},
	}
	store.postings[job.ID] = job
	store.credits[2] = 1
	provider := &fakeProvider{text: "the proposal"}
	pl := newTestPipeline(store, provider, nil)
	ctx := context.Background()

	text, err := pl.Reveal(ctx, 2, job.ID)
	if err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	if text != "the proposal" {
		t.Errorf("text = %q", text)
	}
	if store.credits[2] != 0 {
		t.Errorf("credits = %d, want 0", store.credits[2])
	}

	// Second reveal of the same job is free and returns the stored text.
	text, err = pl.Reveal(ctx, 2, job.ID)
	if err != nil {
		t.Fatalf("repeat Reveal() error = %v", err)
	}
	if text != "the proposal" {
		t.Errorf("repeat text = %q", text)
	}

	// A different job with no credits is refused.
	store.postings["job-2"] = model.Posting{ID: "job-2", Title: "Other", Link: "x"}
	if _, err := pl.Reveal(ctx, 2, "job-2"); !errors.Is(err, ErrNoCredits) {
		t.Fatalf("Reveal() error = %v, want ErrNoCredits", err)
	}

	// Only the first reveal paid for a generation; the free resend and the
	// refused reveal never reach the provider.
	if provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.callCount())
	}
}

func TestRevealWithoutCreditsMakesNoProviderCall(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 2, Plan: model.PlanScout, MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate},
	}
	store.postings[job.ID] = job
	provider := &fakeProvider{text: "never sent"}
	pl := newTestPipeline(store, provider, nil)

	if _, err := pl.Reveal(context.Background(), 2, job.ID); !errors.Is(err, ErrNoCredits) {
		t.Fatalf("Reveal() error = %v, want ErrNoCredits", err)
	}
	if provider.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", provider.callCount())
	}
}

func TestDraftLimit(t *testing.T) {
	store := newFakeStore()
	store.subscribers = []model.Subscriber{
		{ID: 1, Plan: "hunter", PlanExpiry: futureTime(), MaxBudget: model.UnboundedBudget, MaxRate: model.UnboundedRate},
	}
	store.postings[job.ID] = job
	pl := newTestPipeline(store, &fakeProvider{text: "draft text"}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		text, err := pl.Draft(ctx, 1, job.ID)
		if err != nil {
			t.Fatalf("Draft() %d error = %v", i, err)
		}
		if text != "draft text" {
			t.Errorf("Draft() %d = %q", i, text)
		}
	}
	text, err := pl.Draft(ctx, 1, job.ID)
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if !strings.Contains(text, "all 3 rewrites") {
		t.Errorf("fourth draft = %q, want limit message", text)
	}

	// Strategy drafts have their own, smaller ceiling.
	for i := 0; i < 2; i++ {
		if _, err := pl.StrategyDraft(ctx, 1, job.ID); err != nil {
			t.Fatalf("StrategyDraft() %d error = %v", i, err)
		}
	}
	text, err = pl.StrategyDraft(ctx, 1, job.ID)
	if err != nil {
		t.Fatalf("StrategyDraft() error = %v", err)
	}
	if !strings.Contains(text, "all 2 rewrites") {
		t.Errorf("third strategy draft = %q, want limit message", text)
	}
}
