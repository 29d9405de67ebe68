package alert

import (
	"fmt"
	"strings"

	"github.com/outbid/outbid/internal/model"
)

// header renders the shared top block of every alert.
func header(p model.Posting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New job: %s\n", p.Title)
	switch p.RateType {
	case model.RateHourly:
		fmt.Fprintf(&b, "Rate: $%d-$%d/hr\n", p.BudgetMin, p.BudgetMax)
	case model.RateFixed:
		fmt.Fprintf(&b, "Budget: $%d fixed\n", p.BudgetMax)
	}
	if p.ExperienceLevel != "" && p.ExperienceLevel != "Unknown" {
		fmt.Fprintf(&b, "Level: %s\n", p.ExperienceLevel)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Tags, ", "))
	}
	fmt.Fprintf(&b, "%s\n", p.Link)
	return b.String()
}

// formatProposal renders a full alert with the generated cover letter.
func formatProposal(p model.Posting, proposal string) string {
	return header(p) + "\nDraft proposal:\n" + proposal
}

// formatPlaceholder renders the gated alert limited subscribers receive.
func formatPlaceholder(p model.Posting, credits int) string {
	b := header(p)
	if credits > 0 {
		return b + fmt.Sprintf("\nA tailored proposal is ready. Reveal it with /reveal %s (%d credit(s) left).", p.ID, credits)
	}
	return b + "\nA tailored proposal is ready. You are out of reveal credits; upgrade to see proposals instantly."
}

// formatDraftLimit tells a subscriber they have used up their rewrites.
func formatDraftLimit(limit int) string {
	return fmt.Sprintf("You have used all %d rewrites for this job. Pick your favorite draft and go get it.", limit)
}

// formatUpgradeNudge is the delayed reminder for limited subscribers.
func formatUpgradeNudge() string {
	return "Jobs you matched today went out with ready-to-send proposals. Upgrade to receive them instantly and beat the crowd."
}
