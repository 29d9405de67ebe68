package generate

import (
	"fmt"
	"strings"

	"github.com/outbid/outbid/internal/model"
)

const proposalSystemPrompt = `You are an experienced freelancer writing a cover letter for a job posting.
Write in first person, plain text, no markdown. Be specific to the posting:
open with the client's actual problem, outline a concrete approach, and close
with one clarifying question. Keep it under 200 words. Never mention that you
are an AI.`

const strategySystemPrompt = `You are a freelance bidding coach. Given a job posting and the freelancer's
background, produce a short bidding strategy: what to emphasize, what rate or
budget to anchor on, and the single biggest risk to address up front. Plain
text, under 150 words.`

// proposalUserPrompt renders the posting and subscriber context for a
// proposal draft.
func proposalUserPrompt(p model.Posting, s model.Subscriber) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job title: %s\n", p.Title)
	if p.Price() > 0 {
		fmt.Fprintf(&b, "Budget: $%d (%s)\n", p.Price(), p.RateType)
	}
	if p.ExperienceLevel != "Unknown" && p.ExperienceLevel != "" {
		fmt.Fprintf(&b, "Experience level: %s\n", p.ExperienceLevel)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(p.Tags, ", "))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if s.Bio != "" {
		fmt.Fprintf(&b, "\nFreelancer background: %s\n", s.Bio)
	}
	return b.String()
}

func strategyUserPrompt(p model.Posting, s model.Subscriber) string {
	return proposalUserPrompt(p, s)
}
