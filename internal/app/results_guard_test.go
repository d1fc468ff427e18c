package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/infra/memory"
)

type failingProgressStore struct{}

func (failingProgressStore) Upsert(context.Context, domain.ProgressUpdate) error {
	return errors.New("backend down")
}
func (failingProgressStore) Get(context.Context, string, string) (domain.ProgressRecord, error) {
	return domain.ProgressRecord{}, errors.New("backend down")
}
func (failingProgressStore) Delete(context.Context, string, string) error {
	return errors.New("backend down")
}

func TestGuardProceedsWithoutUser(t *testing.T) {
	guard := app.NewResultsGuard(memory.NewProgressStore(), memory.NewLeaderboardStore(), nil)
	decision := guard.CheckBeforeStart(context.Background(), "s1", "")
	if !decision.Proceed || decision.RequireChoice {
		t.Fatalf("unauthenticated check must proceed, got %+v", decision)
	}
}

func TestGuardFailsOpenOnStoreError(t *testing.T) {
	guard := app.NewResultsGuard(failingProgressStore{}, memory.NewLeaderboardStore(), nil)
	decision := guard.CheckBeforeStart(context.Background(), "s1", "u1")
	if !decision.Proceed {
		t.Fatalf("store failure must not block the quiz, got %+v", decision)
	}
}

func TestGuardRequiresChoiceForCompletedAttempt(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()
	leaderboard := memory.NewLeaderboardStore()
	guard := app.NewResultsGuard(progress, leaderboard, nil)

	if err := progress.Upsert(ctx, domain.ProgressUpdate{
		SessionID: "s1", UserID: "u1",
		TotalAnswered: 5, CorrectAnswers: 3, Completed: true,
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	// The leaderboard row is authoritative for the displayed score.
	if err := leaderboard.Put(ctx, domain.LeaderboardEntry{
		SessionID: "s1", UserID: "u1",
		ScorePercent: 80, CorrectAnswers: 4, TotalAnswered: 5,
		CompletedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed leaderboard: %v", err)
	}

	decision := guard.CheckBeforeStart(ctx, "s1", "u1")
	if decision.Proceed || !decision.RequireChoice {
		t.Fatalf("completed attempt must interpose a choice, got %+v", decision)
	}
	if !decision.Existing.Completed || decision.Existing.ScorePercent != 80 {
		t.Fatalf("expected leaderboard score 80, got %+v", decision.Existing)
	}
}

func TestGuardDetectsPartialAttempt(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()
	guard := app.NewResultsGuard(progress, memory.NewLeaderboardStore(), nil)

	if err := progress.Upsert(ctx, domain.ProgressUpdate{
		SessionID: "s1", UserID: "u1", TotalAnswered: 2, CorrectAnswers: 1,
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	existing, err := guard.CheckExistingResults(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !existing.HasResults || existing.Completed {
		t.Fatalf("expected partial attempt detected, got %+v", existing)
	}
	if existing.ScorePercent != 50 {
		t.Fatalf("expected 50%%, got %d", existing.ScorePercent)
	}
}

func TestDiscardAndRestartClearsDetection(t *testing.T) {
	ctx := context.Background()
	progress := memory.NewProgressStore()
	guard := app.NewResultsGuard(progress, memory.NewLeaderboardStore(), nil)

	if err := progress.Upsert(ctx, domain.ProgressUpdate{
		SessionID: "s1", UserID: "u1", TotalAnswered: 5, CorrectAnswers: 5, Completed: true,
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	if err := guard.DiscardAndRestart(ctx, "s1", "u1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	existing, err := guard.CheckExistingResults(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if existing.HasResults {
		t.Fatalf("expected no results after discard, got %+v", existing)
	}

	// Discarding an absent record is not an error.
	if err := guard.DiscardAndRestart(ctx, "s1", "u1"); err != nil {
		t.Fatalf("discard absent record: %v", err)
	}
}
