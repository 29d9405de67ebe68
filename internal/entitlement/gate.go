// Package entitlement classifies subscribers into access levels and keeps
// stored plans honest: an expired paid plan is demoted the first time it is
// observed.
package entitlement

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// Level is a subscriber's access tier.
type Level int

const (
	// Limited subscribers get placeholders and must spend reveal credits.
	Limited Level = iota
	// Entitled subscribers hold an active paid plan.
	Entitled
	// Unrestricted means the deployment runs with payments disabled.
	Unrestricted
	// Admin bypasses every gate.
	Admin
)

func (l Level) String() string {
	switch l {
	case Limited:
		return "limited"
	case Entitled:
		return "entitled"
	case Unrestricted:
		return "unrestricted"
	case Admin:
		return "admin"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Permissions is what a level grants.
type Permissions struct {
	FullProposals bool // receive generated proposals directly
	Drafts        bool // request proposal and strategy rewrites
}

// For maps a level to its permissions.
func For(level Level) Permissions {
	switch level {
	case Limited:
		return Permissions{}
	default:
		return Permissions{FullProposals: true, Drafts: true}
	}
}

// Gate classifies subscribers. It needs the subscriber store to persist
// demotions when a paid plan has lapsed.
type Gate struct {
	adminIDs     map[int64]bool
	unrestricted bool
	store        model.SubscriberStore
	now          func() time.Time
	logger       *slog.Logger
}

// NewGate creates a gate. When unrestricted is true every subscriber is
// treated as entitled regardless of plan.
func NewGate(adminIDs []int64, unrestricted bool, store model.SubscriberStore, logger *slog.Logger) *Gate {
	ids := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = true
	}
	return &Gate{
		adminIDs:     ids,
		unrestricted: unrestricted,
		store:        store,
		now:          time.Now,
		logger:       logger,
	}
}

// Classify returns the subscriber's current level. An expired paid plan is
// demoted in the store as a side effect; repeating the call for an already
// demoted subscriber is a no-op.
func (g *Gate) Classify(s model.Subscriber) Level {
	if g.adminIDs[s.ID] {
		return Admin
	}
	if g.unrestricted {
		return Unrestricted
	}
	if s.Plan == model.PlanScout || s.Plan == "" {
		return Limited
	}
	if s.PlanExpiry != nil && s.PlanExpiry.After(g.now()) {
		return Entitled
	}

	g.logger.Info("plan expired, demoting subscriber",
		"subscriber_id", s.ID,
		"plan", s.Plan)
	if err := g.store.DowngradeToScout(s.ID); err != nil {
		g.logger.Error("demotion failed", "subscriber_id", s.ID, "error", err)
	}
	return Limited
}

// Entitled reports whether s currently receives full proposals.
func (g *Gate) Entitled(s model.Subscriber) bool {
	return For(g.Classify(s)).FullProposals
}
