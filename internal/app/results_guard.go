package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"groupquiz-service/internal/domain"
)

// ResultsGuard prevents a user from unknowingly restarting a quiz they have
// already completed. The check fails open: unauthenticated users and backend
// failures never block the quiz.
type ResultsGuard struct {
	progress    ProgressStore
	leaderboard LeaderboardStore
	logger      *slog.Logger
}

func NewResultsGuard(progress ProgressStore, leaderboard LeaderboardStore, logger *slog.Logger) *ResultsGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsGuard{progress: progress, leaderboard: leaderboard, logger: logger}
}

// GuardDecision is the outcome of the pre-start check. When RequireChoice is
// set the UI interposes resume-to-setup vs discard-and-restart.
type GuardDecision struct {
	Proceed       bool                  `json:"proceed"`
	RequireChoice bool                  `json:"requireChoice"`
	Existing      domain.ExistingResult `json:"existing"`
}

// CheckBeforeStart consults existing results ahead of the info/active phases.
func (g *ResultsGuard) CheckBeforeStart(ctx context.Context, sessionID, userID string) GuardDecision {
	if userID == "" {
		return GuardDecision{Proceed: true}
	}
	existing, err := g.CheckExistingResults(ctx, sessionID, userID)
	if err != nil {
		g.logger.Warn("existing-results check failed, proceeding", "session", sessionID, "user", userID, "error", err)
		return GuardDecision{Proceed: true}
	}
	if !existing.HasResults {
		return GuardDecision{Proceed: true}
	}
	return GuardDecision{RequireChoice: true, Existing: existing}
}

// CheckExistingResults looks for a completed attempt first, then relaxes to
// any record with answered questions so mid-session resumption is detected.
// The displayed score prefers a persisted leaderboard entry when one exists,
// since final submission writes the leaderboard row last.
func (g *ResultsGuard) CheckExistingResults(ctx context.Context, sessionID, userID string) (domain.ExistingResult, error) {
	record, err := g.progress.Get(ctx, sessionID, userID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		return domain.ExistingResult{}, nil
	}
	if err != nil {
		return domain.ExistingResult{}, fmt.Errorf("existing-results check: %w", err)
	}
	if !record.Completed && record.TotalAnswered == 0 {
		return domain.ExistingResult{}, nil
	}

	result := domain.ExistingResult{
		HasResults:     true,
		Completed:      record.Completed,
		ScorePercent:   domain.ScorePercent(record.CorrectAnswers, record.TotalAnswered),
		CorrectAnswers: record.CorrectAnswers,
		TotalAnswered:  record.TotalAnswered,
	}
	if record.Completed {
		if entry, err := g.leaderboard.Get(ctx, sessionID, userID); err == nil {
			result.ScorePercent = entry.ScorePercent
			result.CorrectAnswers = entry.CorrectAnswers
			result.TotalAnswered = entry.TotalAnswered
		}
	}
	return result, nil
}

// DiscardAndRestart deletes the progress record; the next check reports no
// results and the quiz proceeds from scratch.
func (g *ResultsGuard) DiscardAndRestart(ctx context.Context, sessionID, userID string) error {
	if err := g.progress.Delete(ctx, sessionID, userID); err != nil &&
		!errors.Is(err, domain.ErrProgressNotFound) {
		return fmt.Errorf("discard progress: %w", err)
	}
	return nil
}
