// Package phase derives the canonical quiz phase from volatile state and
// reconciles the client's current route against it. Everything here is pure:
// same inputs always yield the same phase, and no function errors.
package phase

import (
	"time"

	"groupquiz-service/internal/domain"
)

// Phase is the coarse stage of a quiz session as seen by one client.
type Phase string

const (
	Setup   Phase = "setup"
	Lobby   Phase = "lobby"
	Info    Phase = "info"
	Preview Phase = "preview"
	Active  Phase = "active"
	Results Phase = "results"
)

// order is the intended forward progression.
var order = []Phase{Setup, Lobby, Info, Preview, Active, Results}

// AppState is the client-reported application state feeding derivation.
type AppState string

const (
	StateNone    AppState = ""
	StateInfo    AppState = "quiz-info"
	StatePreview AppState = "quiz-preview"
	StateActive  AppState = "quiz-active"
	StateResults AppState = "quiz-results"
)

// Index returns the forward-order position of p, or -1 for unknown phases.
func Index(p Phase) int {
	for i, candidate := range order {
		if candidate == p {
			return i
		}
	}
	return -1
}

// FromSegment parses a route path segment into a phase.
func FromSegment(segment string) (Phase, bool) {
	p := Phase(segment)
	if Index(p) >= 0 {
		return p, true
	}
	return "", false
}

// Derive computes the canonical phase. The application state wins outright;
// without one, a scheduled session with a strictly-future start time lands in
// the lobby and everything else defaults to setup.
func Derive(state AppState, status domain.SessionStatus, scheduledAt *time.Time, now time.Time) Phase {
	switch state {
	case StateResults:
		return Results
	case StateActive:
		return Active
	case StatePreview:
		return Preview
	case StateInfo:
		return Info
	}
	if status == domain.StatusScheduled && scheduledAt != nil && scheduledAt.After(now) {
		return Lobby
	}
	return Setup
}
