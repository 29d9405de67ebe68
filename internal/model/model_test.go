package model

import (
	"testing"
	"time"
)

func TestPostingPrice(t *testing.T) {
	tests := []struct {
		name string
		p    Posting
		want int
	}{
		{"max wins", Posting{BudgetMin: 30, BudgetMax: 60}, 60},
		{"min only", Posting{BudgetMin: 500}, 500},
		{"no signal", Posting{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Price(); got != tt.want {
				t.Errorf("Price() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPostingSearchText(t *testing.T) {
	p := Posting{
		Title:       "Go Developer",
		Description: "Build a REST API",
		Tags:        []string{"Golang", "PostgreSQL"},
	}
	got := p.SearchText()
	want := "go developer build a rest api golang postgresql"
	if got != want {
		t.Errorf("SearchText() = %q, want %q", got, want)
	}
}

func TestSubscriberPaused(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		s    Subscriber
		want bool
	}{
		{"no pause", Subscriber{}, false},
		{"active pause", Subscriber{PausedUntil: &future}, true},
		{"expired pause", Subscriber{PausedUntil: &past}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Paused(now); got != tt.want {
				t.Errorf("Paused() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscriberPausedIndefinitely(t *testing.T) {
	now := time.Now()
	farOut := now.Add(indefinitePauseHorizon + 24*time.Hour)
	nextWeek := now.Add(7 * 24 * time.Hour)

	if s := (Subscriber{PausedUntil: &farOut}); !s.PausedIndefinitely(now) {
		t.Error("far-future pause should read as indefinite")
	}
	if s := (Subscriber{PausedUntil: &nextWeek}); s.PausedIndefinitely(now) {
		t.Error("timed pause should not read as indefinite")
	}
}

func TestSubscriberWantsExperience(t *testing.T) {
	s := Subscriber{ExperienceLevels: []string{"Intermediate", "Expert"}}
	if !s.WantsExperience("Expert") {
		t.Error("listed level should match")
	}
	if s.WantsExperience("Entry") {
		t.Error("unlisted level should not match")
	}
	if !s.WantsExperience("Unknown") {
		t.Error("posting without a recognized level should pass any set")
	}
	if !s.WantsExperience("") {
		t.Error("posting with an empty level should pass any set")
	}
	open := Subscriber{}
	if !open.WantsExperience("Entry") {
		t.Error("empty set should accept everything")
	}
}
