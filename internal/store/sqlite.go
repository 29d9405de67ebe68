package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/outbid/outbid/internal/model"
)

// SQLiteStore persists everything the pipeline needs to survive restarts:
// the seen set, extracted postings, subscriber profiles, draft counters,
// reveal state, and the alert ledger.
type SQLiteStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS seen_jobs (
		job_id     TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		link       TEXT NOT NULL DEFAULT '',
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		job_id        TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		link          TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		tags          TEXT NOT NULL DEFAULT '[]',
		budget_min    INTEGER NOT NULL DEFAULT 0,
		budget_max    INTEGER NOT NULL DEFAULT 0,
		rate_type     TEXT NOT NULL DEFAULT 'Unknown',
		experience    TEXT NOT NULL DEFAULT 'Unknown',
		posted_label  TEXT NOT NULL DEFAULT '',
		discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS subscribers (
		id             INTEGER PRIMARY KEY,
		keywords       TEXT NOT NULL DEFAULT '[]',
		bio            TEXT NOT NULL DEFAULT '',
		min_budget     INTEGER NOT NULL DEFAULT 0,
		max_budget     INTEGER NOT NULL DEFAULT 999999,
		min_rate       INTEGER NOT NULL DEFAULT 0,
		max_rate       INTEGER NOT NULL DEFAULT 999,
		experience     TEXT NOT NULL DEFAULT '[]',
		paused_until   DATETIME,
		plan           TEXT NOT NULL DEFAULT 'scout',
		plan_expiry    DATETIME,
		reveal_credits INTEGER NOT NULL DEFAULT 0,
		match_all      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS draft_counts (
		subscriber_id  INTEGER NOT NULL,
		job_id         TEXT NOT NULL,
		regular        INTEGER NOT NULL DEFAULT 0,
		strategy       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (subscriber_id, job_id)
	)`,
	`CREATE TABLE IF NOT EXISTS revealed_jobs (
		subscriber_id INTEGER NOT NULL,
		job_id        TEXT NOT NULL,
		proposal      TEXT NOT NULL DEFAULT '',
		revealed_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (subscriber_id, job_id)
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id        TEXT NOT NULL,
		subscriber_id INTEGER NOT NULL,
		kind          TEXT NOT NULL,
		sent_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	// Serialized access keeps the guarded credit debit race-free.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// HasSeen returns true if the given job ID has already been recorded.
func (s *SQLiteStore) HasSeen(jobID string) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM seen_jobs WHERE job_id = ?", jobID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking seen status for %s: %w", jobID, err)
	}
	return true, nil
}

// MarkSeen records a job ID as seen. If it already exists the call is a no-op.
func (s *SQLiteStore) MarkSeen(jobID, title, link string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO seen_jobs (job_id, title, link) VALUES (?, ?, ?)",
		jobID, title, link)
	if err != nil {
		return fmt.Errorf("marking job %s as seen: %w", jobID, err)
	}
	return nil
}

// SavePosting caches the full extracted posting so reveals and drafts can
// re-load job context later.
func (s *SQLiteStore) SavePosting(p model.Posting) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO postings
		(job_id, title, link, description, tags, budget_min, budget_max, rate_type, experience, posted_label, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Link, p.Description, string(tags),
		p.BudgetMin, p.BudgetMax, string(p.RateType), p.ExperienceLevel, p.PostedLabel, p.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("saving posting %s: %w", p.ID, err)
	}
	return nil
}

// PostingByID loads a cached posting.
func (s *SQLiteStore) PostingByID(jobID string) (model.Posting, bool, error) {
	var (
		p        model.Posting
		tags     string
		rateType string
	)
	err := s.db.QueryRow(`SELECT job_id, title, link, description, tags, budget_min, budget_max,
		rate_type, experience, posted_label, discovered_at FROM postings WHERE job_id = ?`, jobID).
		Scan(&p.ID, &p.Title, &p.Link, &p.Description, &tags, &p.BudgetMin, &p.BudgetMax,
			&rateType, &p.ExperienceLevel, &p.PostedLabel, &p.DiscoveredAt)
	if err == sql.ErrNoRows {
		return model.Posting{}, false, nil
	}
	if err != nil {
		return model.Posting{}, false, fmt.Errorf("loading posting %s: %w", jobID, err)
	}
	p.RateType = model.RateType(rateType)
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return model.Posting{}, false, fmt.Errorf("unmarshal tags for %s: %w", jobID, err)
	}
	return p, true, nil
}

// RecentPostings returns up to limit postings, newest first.
func (s *SQLiteStore) RecentPostings(limit int) ([]model.Posting, error) {
	rows, err := s.db.Query(`SELECT job_id, title, link, description, tags, budget_min, budget_max,
		rate_type, experience, posted_label, discovered_at
		FROM postings ORDER BY discovered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent postings: %w", err)
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		var (
			p        model.Posting
			tags     string
			rateType string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Link, &p.Description, &tags, &p.BudgetMin,
			&p.BudgetMax, &rateType, &p.ExperienceLevel, &p.PostedLabel, &p.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		p.RateType = model.RateType(rateType)
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for %s: %w", p.ID, err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// Subscribers loads every subscriber profile.
func (s *SQLiteStore) Subscribers() ([]model.Subscriber, error) {
	rows, err := s.db.Query(`SELECT id, keywords, bio, min_budget, max_budget, min_rate, max_rate,
		experience, paused_until, plan, plan_expiry, reveal_credits, match_all FROM subscribers`)
	if err != nil {
		return nil, fmt.Errorf("loading subscribers: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows.Scan)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SubscriberByID loads one subscriber.
func (s *SQLiteStore) SubscriberByID(id int64) (model.Subscriber, bool, error) {
	row := s.db.QueryRow(`SELECT id, keywords, bio, min_budget, max_budget, min_rate, max_rate,
		experience, paused_until, plan, plan_expiry, reveal_credits, match_all
		FROM subscribers WHERE id = ?`, id)
	sub, err := scanSubscriber(row.Scan)
	if err == sql.ErrNoRows {
		return model.Subscriber{}, false, nil
	}
	if err != nil {
		return model.Subscriber{}, false, err
	}
	return sub, true, nil
}

func scanSubscriber(scan func(dest ...any) error) (model.Subscriber, error) {
	var (
		sub         model.Subscriber
		keywords    string
		experience  string
		pausedUntil sql.NullTime
		planExpiry  sql.NullTime
	)
	err := scan(&sub.ID, &keywords, &sub.Bio, &sub.MinBudget, &sub.MaxBudget, &sub.MinRate,
		&sub.MaxRate, &experience, &pausedUntil, &sub.Plan, &planExpiry, &sub.RevealCredits, &sub.MatchAll)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Subscriber{}, err
		}
		return model.Subscriber{}, fmt.Errorf("scanning subscriber: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &sub.Keywords); err != nil {
		return model.Subscriber{}, fmt.Errorf("unmarshal keywords for %d: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(experience), &sub.ExperienceLevels); err != nil {
		return model.Subscriber{}, fmt.Errorf("unmarshal experience for %d: %w", sub.ID, err)
	}
	if pausedUntil.Valid {
		sub.PausedUntil = &pausedUntil.Time
	}
	if planExpiry.Valid {
		sub.PlanExpiry = &planExpiry.Time
	}
	return sub, nil
}

// SaveSubscriber inserts or replaces a subscriber profile.
func (s *SQLiteStore) SaveSubscriber(sub model.Subscriber) error {
	keywords, err := json.Marshal(sub.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	experience, err := json.Marshal(sub.ExperienceLevels)
	if err != nil {
		return fmt.Errorf("marshal experience: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO subscribers
		(id, keywords, bio, min_budget, max_budget, min_rate, max_rate, experience,
		 paused_until, plan, plan_expiry, reveal_credits, match_all)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, string(keywords), sub.Bio, sub.MinBudget, sub.MaxBudget, sub.MinRate, sub.MaxRate,
		string(experience), sub.PausedUntil, sub.Plan, sub.PlanExpiry, sub.RevealCredits, sub.MatchAll)
	if err != nil {
		return fmt.Errorf("saving subscriber %d: %w", sub.ID, err)
	}
	return nil
}

// DowngradeToScout resets an expired plan. Calling it for a subscriber who is
// already on scout is a no-op.
func (s *SQLiteStore) DowngradeToScout(id int64) error {
	_, err := s.db.Exec("UPDATE subscribers SET plan = ?, plan_expiry = NULL WHERE id = ? AND plan != ?",
		model.PlanScout, id, model.PlanScout)
	if err != nil {
		return fmt.Errorf("downgrading subscriber %d: %w", id, err)
	}
	return nil
}

// DraftCounts returns the rewrite counters for one (subscriber, job) pair.
func (s *SQLiteStore) DraftCounts(subscriberID int64, jobID string) (model.DraftCounts, error) {
	var c model.DraftCounts
	err := s.db.QueryRow("SELECT regular, strategy FROM draft_counts WHERE subscriber_id = ? AND job_id = ?",
		subscriberID, jobID).Scan(&c.Regular, &c.Strategy)
	if err == sql.ErrNoRows {
		return model.DraftCounts{}, nil
	}
	if err != nil {
		return model.DraftCounts{}, fmt.Errorf("loading draft counts: %w", err)
	}
	return c, nil
}

// IncrementDraft bumps the counter for one draft kind and returns the new value.
func (s *SQLiteStore) IncrementDraft(subscriberID int64, jobID string, strategy bool) (int, error) {
	column := "regular"
	if strategy {
		column = "strategy"
	}
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO draft_counts (subscriber_id, job_id, %[1]s) VALUES (?, ?, 1)
		ON CONFLICT(subscriber_id, job_id) DO UPDATE SET %[1]s = %[1]s + 1`, column),
		subscriberID, jobID)
	if err != nil {
		return 0, fmt.Errorf("incrementing draft count: %w", err)
	}
	var count int
	err = s.db.QueryRow(fmt.Sprintf("SELECT %s FROM draft_counts WHERE subscriber_id = ? AND job_id = ?", column),
		subscriberID, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reading draft count: %w", err)
	}
	return count, nil
}

// RevealCredits returns the subscriber's remaining credits.
func (s *SQLiteStore) RevealCredits(subscriberID int64) (int, error) {
	var credits int
	err := s.db.QueryRow("SELECT reveal_credits FROM subscribers WHERE id = ?", subscriberID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading reveal credits for %d: %w", subscriberID, err)
	}
	return credits, nil
}

// RevealedProposal returns the stored proposal if the subscriber has already
// revealed this job.
func (s *SQLiteStore) RevealedProposal(subscriberID int64, jobID string) (string, bool, error) {
	var proposal string
	err := s.db.QueryRow("SELECT proposal FROM revealed_jobs WHERE subscriber_id = ? AND job_id = ?",
		subscriberID, jobID).Scan(&proposal)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading revealed proposal: %w", err)
	}
	return proposal, true, nil
}

// DebitRevealCredit atomically spends one credit to reveal a job. It returns
// true when the reveal is granted: either the job was already revealed (no
// charge) or a credit was available and consumed. Concurrent calls for the
// same pair settle to exactly one debit.
func (s *SQLiteStore) DebitRevealCredit(subscriberID int64, jobID, proposalText string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin reveal tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow("SELECT 1 FROM revealed_jobs WHERE subscriber_id = ? AND job_id = ?",
		subscriberID, jobID).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking revealed state: %w", err)
	}

	// Guarded decrement: only fires when a credit remains.
	res, err := tx.Exec("UPDATE subscribers SET reveal_credits = reveal_credits - 1 WHERE id = ? AND reveal_credits > 0",
		subscriberID)
	if err != nil {
		return false, fmt.Errorf("debiting credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debiting credit: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.Exec("INSERT INTO revealed_jobs (subscriber_id, job_id, proposal) VALUES (?, ?, ?)",
		subscriberID, jobID, proposalText); err != nil {
		return false, fmt.Errorf("recording reveal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reveal tx: %w", err)
	}
	return true, nil
}

// RecordAlert appends one row to the delivery ledger.
func (s *SQLiteStore) RecordAlert(jobID string, subscriberID int64, kind model.AlertKind) error {
	_, err := s.db.Exec("INSERT INTO alerts (job_id, subscriber_id, kind) VALUES (?, ?, ?)",
		jobID, subscriberID, string(kind))
	if err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	return nil
}

// AlertStats summarizes the ledger.
func (s *SQLiteStore) AlertStats() (model.LedgerStats, error) {
	stats := model.LedgerStats{ByKind: make(map[model.AlertKind]int)}

	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM alerts GROUP BY kind")
	if err != nil {
		return stats, fmt.Errorf("loading alert stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, fmt.Errorf("scanning alert stats: %w", err)
		}
		stats.ByKind[model.AlertKind(kind)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts WHERE sent_at > ?", cutoff).Scan(&stats.Recent); err != nil {
		return stats, fmt.Errorf("counting recent alerts: %w", err)
	}
	return stats, nil
}

// AlertsForJob lists ledger rows for one posting, newest first.
func (s *SQLiteStore) AlertsForJob(jobID string) ([]model.AlertRecord, error) {
	rows, err := s.db.Query("SELECT job_id, subscriber_id, kind, sent_at FROM alerts WHERE job_id = ? ORDER BY sent_at DESC",
		jobID)
	if err != nil {
		return nil, fmt.Errorf("loading alerts for %s: %w", jobID, err)
	}
	defer rows.Close()

	var records []model.AlertRecord
	for rows.Next() {
		var (
			r    model.AlertRecord
			kind string
		)
		if err := rows.Scan(&r.JobID, &r.SubscriberID, &kind, &r.SentAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		r.Kind = model.AlertKind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Cleanup deletes seen-job entries and cached postings older than the given
// duration. Revealed proposals are kept; they are paid for.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	if _, err := s.db.Exec("DELETE FROM seen_jobs WHERE first_seen < ?", cutoff); err != nil {
		return fmt.Errorf("cleaning up seen jobs older than %v: %w", olderThan, err)
	}
	if _, err := s.db.Exec("DELETE FROM postings WHERE discovered_at < ?", cutoff); err != nil {
		return fmt.Errorf("cleaning up postings older than %v: %w", olderThan, err)
	}
	return nil
}

// IsEmpty returns true if the seen_jobs table has no entries.
func (s *SQLiteStore) IsEmpty() (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM seen_jobs").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking if store is empty: %w", err)
	}
	return count == 0, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
