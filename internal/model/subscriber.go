package model

import "time"

// Plan identifiers. Anything other than PlanScout is a paid tier.
const PlanScout = "scout"

// Sentinels marking a filter bound as "unbounded". A max equal to the
// sentinel disables the upper check.
const (
	UnboundedBudget = 999999
	UnboundedRate   = 999
)

// indefinitePauseHorizon: a PausedUntil this far out encodes "paused until
// further notice" rather than a timed pause.
const indefinitePauseHorizon = 10 * 365 * 24 * time.Hour

// Subscriber is a read snapshot of one recipient's profile, filters and
// entitlement state, loaded fresh at alert time.
type Subscriber struct {
	ID               int64    // chat/recipient identifier
	Keywords         []string // alert keywords; empty means no keyword match
	Bio              string   // background context fed to generation
	MinBudget        int
	MaxBudget        int
	MinRate          int
	MaxRate          int
	ExperienceLevels []string
	PausedUntil      *time.Time // nil = not paused
	Plan             string
	PlanExpiry       *time.Time
	RevealCredits    int
	MatchAll         bool // admin profiles without keywords still match every posting
}

// Paused reports whether alerts are currently suppressed for this subscriber.
func (s Subscriber) Paused(now time.Time) bool {
	return s.PausedUntil != nil && s.PausedUntil.After(now)
}

// PausedIndefinitely reports whether the pause uses the far-future sentinel.
func (s Subscriber) PausedIndefinitely(now time.Time) bool {
	return s.PausedUntil != nil && s.PausedUntil.After(now.Add(indefinitePauseHorizon))
}

// WantsExperience reports whether level is in the subscriber's accepted set.
// An empty set accepts everything; a posting with no recognized level passes
// every set, matching the missing-data-passes rule.
func (s Subscriber) WantsExperience(level string) bool {
	if len(s.ExperienceLevels) == 0 {
		return true
	}
	if level == "" || level == "Unknown" {
		return true
	}
	for _, e := range s.ExperienceLevels {
		if e == level {
			return true
		}
	}
	return false
}
