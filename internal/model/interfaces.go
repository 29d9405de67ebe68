package model

import (
	"context"
	"time"
)

// AlertKind classifies entries in the append-only alert ledger.
type AlertKind string

const (
	AlertProposal     AlertKind = "proposal"
	AlertPlaceholder  AlertKind = "placeholder"
	AlertLimit        AlertKind = "limit"
	AlertAnnouncement AlertKind = "announcement"
)

// DraftCounts holds per-(subscriber, posting) generation counters.
// Monotonically incremented, never decremented.
type DraftCounts struct {
	Regular  int
	Strategy int
}

// AlertRecord is one row of the delivery ledger.
type AlertRecord struct {
	JobID        string
	SubscriberID int64
	Kind         AlertKind
	SentAt       time.Time
}

// LedgerStats summarizes the alert ledger for reporting.
type LedgerStats struct {
	Total  int
	ByKind map[AlertKind]int
	Recent int
}

// SeenStore answers "seen before?" and records new posting IDs.
// MarkSeen must be idempotent.
type SeenStore interface {
	HasSeen(jobID string) (bool, error)
	MarkSeen(jobID, title, link string) error
}

// PostingStore caches extracted postings so reveals and strategy rewrites can
// re-load job context after the scan cycle has moved on.
type PostingStore interface {
	SavePosting(p Posting) error
	PostingByID(jobID string) (Posting, bool, error)
}

// SubscriberStore loads recipient snapshots and applies entitlement demotions.
type SubscriberStore interface {
	Subscribers() ([]Subscriber, error)
	SubscriberByID(id int64) (Subscriber, bool, error)
	DowngradeToScout(id int64) error
}

// DraftStore tracks per-(subscriber, posting) generation counters.
type DraftStore interface {
	DraftCounts(subscriberID int64, jobID string) (DraftCounts, error)
	IncrementDraft(subscriberID int64, jobID string, strategy bool) (int, error)
}

// RevealStore manages reveal credits and stored revealed proposals.
// DebitRevealCredit must be atomic: under concurrent calls for the same
// subscriber and job, at most one debit succeeds and an already-revealed job
// is never re-billed.
type RevealStore interface {
	RevealCredits(subscriberID int64) (int, error)
	DebitRevealCredit(subscriberID int64, jobID, proposalText string) (bool, error)
	RevealedProposal(subscriberID int64, jobID string) (string, bool, error)
}

// LedgerStore appends to the delivery audit log.
type LedgerStore interface {
	RecordAlert(jobID string, subscriberID int64, kind AlertKind) error
}

// Messenger delivers one formatted message to one recipient.
// A permanently unreachable recipient is reported by wrapping
// ErrRecipientBlocked; any other error is a transient delivery failure.
type Messenger interface {
	Send(ctx context.Context, recipientID int64, text string) error
}
