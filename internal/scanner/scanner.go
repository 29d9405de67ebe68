// Package scanner owns the scan cycle: fetch the search page, extract
// postings, drop already-seen ones, and hand each new posting to the alert
// pipeline for dispatch.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outbid/outbid/internal/dispatch"
	"github.com/outbid/outbid/internal/model"
)

// PageFetcher retrieves the raw search page HTML.
type PageFetcher interface {
	Fetch(ctx context.Context, targetURL string) (string, error)
}

// PostingExtractor parses search page HTML into postings.
type PostingExtractor interface {
	Postings(html string) ([]model.Posting, error)
}

// AlertPreparer builds the per-subscriber messages for one posting.
type AlertPreparer interface {
	Prepare(ctx context.Context, p model.Posting) ([]dispatch.Prepared, error)
}

// Dispatcher sends prepared messages.
type Dispatcher interface {
	DispatchAll(ctx context.Context, messages []dispatch.Prepared) (dispatch.Stats, error)
}

type seenStore interface {
	model.SeenStore
	SavePosting(p model.Posting) error
}

// Scanner runs one scan cycle at a time.
type Scanner struct {
	searchURL string
	fetcher   PageFetcher
	extractor PostingExtractor
	store     seenStore
	preparer  AlertPreparer
	batcher   Dispatcher
	logger    *slog.Logger
}

// New wires a scanner.
func New(searchURL string, fetcher PageFetcher, extractor PostingExtractor, store seenStore,
	preparer AlertPreparer, batcher Dispatcher, logger *slog.Logger) *Scanner {
	return &Scanner{
		searchURL: searchURL,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		preparer:  preparer,
		batcher:   batcher,
		logger:    logger,
	}
}

// Scan runs one cycle: fetch, extract, dedup, prepare, dispatch. New postings
// are marked seen as soon as they are identified, so a dispatch failure never
// causes duplicate alerts on the next cycle.
func (s *Scanner) Scan(ctx context.Context) error {
	html, err := s.fetcher.Fetch(ctx, s.searchURL)
	if err != nil {
		return fmt.Errorf("fetch search page: %w", err)
	}

	postings, err := s.extractor.Postings(html)
	if err != nil {
		return fmt.Errorf("extract postings: %w", err)
	}

	var fresh []model.Posting
	for _, p := range postings {
		seen, err := s.store.HasSeen(p.ID)
		if err != nil {
			return fmt.Errorf("checking seen status: %w", err)
		}
		if seen {
			continue
		}
		if err := s.store.MarkSeen(p.ID, p.Title, p.Link); err != nil {
			return fmt.Errorf("marking seen: %w", err)
		}
		if err := s.store.SavePosting(p); err != nil {
			return fmt.Errorf("saving posting: %w", err)
		}
		fresh = append(fresh, p)
	}

	s.logger.Info("scan cycle",
		"extracted", len(postings),
		"new", len(fresh))

	for _, p := range fresh {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prepared, err := s.preparer.Prepare(ctx, p)
		if err != nil {
			s.logger.Error("prepare failed", "job_id", p.ID, "error", err)
			continue
		}
		if len(prepared) == 0 {
			continue
		}
		if _, err := s.batcher.DispatchAll(ctx, prepared); err != nil {
			return fmt.Errorf("dispatching alerts for %s: %w", p.ID, err)
		}
	}
	return nil
}
