// Package ratelimit tracks the rate-limit budget a OneRoster server reports
// in its X-RateLimit-Remaining and X-RateLimit-Reset headers and holds back
// requests once that budget is spent.
package ratelimit

import (
	"time"
)

// Response headers read by the tracker.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// epochThreshold separates reset values given as seconds-until-reset from
// values given as a Unix timestamp.
const epochThreshold = 1_000_000_000

// State is the last rate-limit budget reported by the server.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Exhausted reports whether the window has no requests left and has not reset yet.
func (s *State) Exhausted(now time.Time) bool {
	return s.Remaining <= 0 && now.Before(s.ResetAt)
}

// TimeUntilReset returns the duration until the window resets, or 0 if it
// already has.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// resetTime interprets a reset header value relative to now.
func resetTime(value int64, now time.Time) time.Time {
	if value >= epochThreshold {
		return time.Unix(value, 0)
	}
	return now.Add(time.Duration(value) * time.Second)
}
