package store

import (
	"time"

	"github.com/outbid/outbid/internal/model"
)

// NopStore is a no-op seen store used by the one-shot scan command. It never
// marks jobs as seen, so every posting appears new on each run.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) HasSeen(jobID string) (bool, error) { return false, nil }

func (s *NopStore) MarkSeen(jobID, title, link string) error { return nil }

func (s *NopStore) SavePosting(p model.Posting) error { return nil }

func (s *NopStore) Cleanup(olderThan time.Duration) error { return nil }

func (s *NopStore) IsEmpty() (bool, error) { return false, nil }

func (s *NopStore) RecordAlert(jobID string, subscriberID int64, kind model.AlertKind) error {
	return nil
}
