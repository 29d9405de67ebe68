package audit

import (
	"fmt"

	"github.com/outbid/outbid/internal/model"
)

// Store is what the audit view needs from the SQLite store.
type Store interface {
	RecentPostings(limit int) ([]model.Posting, error)
	AlertsForJob(jobID string) ([]model.AlertRecord, error)
	AlertStats() (model.LedgerStats, error)
}

// snapshot is everything the TUI renders, loaded up front so the view never
// blocks on the database.
type snapshot struct {
	postings []model.Posting
	alerts   map[string][]model.AlertRecord
	stats    model.LedgerStats
}

const recentLimit = 100

func loadSnapshot(store Store) (*snapshot, error) {
	postings, err := store.RecentPostings(recentLimit)
	if err != nil {
		return nil, fmt.Errorf("loading postings: %w", err)
	}
	stats, err := store.AlertStats()
	if err != nil {
		return nil, fmt.Errorf("loading ledger stats: %w", err)
	}

	alerts := make(map[string][]model.AlertRecord, len(postings))
	for _, p := range postings {
		records, err := store.AlertsForJob(p.ID)
		if err != nil {
			return nil, fmt.Errorf("loading alerts for %s: %w", p.ID, err)
		}
		alerts[p.ID] = records
	}
	return &snapshot{postings: postings, alerts: alerts, stats: stats}, nil
}
