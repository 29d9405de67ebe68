package model

import (
	"strings"
	"time"
)

// RateType distinguishes fixed-budget postings from hourly ones.
type RateType string

const (
	RateUnknown RateType = "Unknown"
	RateFixed   RateType = "Fixed"
	RateHourly  RateType = "Hourly"
)

// Posting is a single job listing extracted from the source page.
// Immutable once created; written once to the seen set and the posting cache.
type Posting struct {
	ID              string   // hex md5 of the canonical link, stable across refetches
	Title           string   // job title
	Link            string   // canonical absolute URL
	Description     string   // short snippet, truncated
	Tags            []string // up to a handful of skill tags
	BudgetMin       int      // 0 = no price signal
	BudgetMax       int      // 0 = no price signal
	RateType        RateType
	ExperienceLevel string // "Entry", "Intermediate", "Expert", or "Unknown"
	PostedLabel     string // human-readable, e.g. "12 minutes ago"
	DiscoveredAt    time.Time
}

// Price returns the posting's effective price signal: the max bound if set,
// otherwise the min bound. Zero means the posting carries no price at all.
func (p Posting) Price() int {
	if p.BudgetMax > 0 {
		return p.BudgetMax
	}
	return p.BudgetMin
}

// SearchText returns the lowercased concatenation of title, description and
// tags, used for keyword matching.
func (p Posting) SearchText() string {
	parts := make([]string, 0, 2+len(p.Tags))
	parts = append(parts, p.Title, p.Description)
	parts = append(parts, p.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}
