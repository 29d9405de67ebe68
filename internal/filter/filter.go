// Package filter decides whether a posting is eligible for a subscriber.
// Every rule must pass; missing data passes rather than blocks, so a posting
// without a price or experience level still reaches subscribers.
package filter

import (
	"strings"
	"time"

	"github.com/outbid/outbid/internal/model"
)

// Matches reports whether posting p should be offered to subscriber s at the
// given time.
func Matches(p model.Posting, s model.Subscriber, now time.Time) bool {
	if s.Paused(now) {
		return false
	}
	if !budgetOK(p, s) {
		return false
	}
	if !s.WantsExperience(p.ExperienceLevel) {
		return false
	}
	return keywordsOK(p, s)
}

// budgetOK checks the posting price against the subscriber's band for its
// rate type. A posting with no recognized price passes. An unbounded max
// sentinel disables the upper check only.
func budgetOK(p model.Posting, s model.Subscriber) bool {
	price := p.Price()
	if price == 0 {
		return true
	}
	switch p.RateType {
	case model.RateHourly:
		if price < s.MinRate {
			return false
		}
		if s.MaxRate != model.UnboundedRate && price > s.MaxRate {
			return false
		}
	case model.RateFixed:
		if price < s.MinBudget {
			return false
		}
		if s.MaxBudget != model.UnboundedBudget && price > s.MaxBudget {
			return false
		}
	}
	return true
}

// keywordsOK matches the subscriber's keywords against the posting's combined
// text. A keywordless profile matches only when flagged MatchAll (admin
// profiles that want every posting). With keywords, MatchAll requires every
// keyword, otherwise any single hit is enough.
func keywordsOK(p model.Posting, s model.Subscriber) bool {
	if len(s.Keywords) == 0 {
		return s.MatchAll
	}
	text := p.SearchText()
	for _, kw := range s.Keywords {
		hit := strings.Contains(text, strings.ToLower(kw))
		if s.MatchAll && !hit {
			return false
		}
		if !s.MatchAll && hit {
			return true
		}
	}
	return s.MatchAll
}
