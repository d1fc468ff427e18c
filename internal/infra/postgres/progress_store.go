package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"groupquiz-service/internal/domain"
)

// ProgressStore persists group_quiz_progress rows keyed by (session, user).
// The upsert refuses to replace a completed attempt with a non-completing
// update; only Delete clears a completed row. Each mutation appends a
// best-effort progress_events audit row.
type ProgressStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProgressStore(pool *pgxpool.Pool, logger *slog.Logger) *ProgressStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressStore{pool: pool, logger: logger}
}

func (s *ProgressStore) Upsert(ctx context.Context, update domain.ProgressUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO group_quiz_progress
			(session_id, user_id, current_question, current_set, total_answered,
			 correct_answers, elapsed_seconds, confidence, completed, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			current_question=EXCLUDED.current_question,
			current_set=EXCLUDED.current_set,
			total_answered=EXCLUDED.total_answered,
			correct_answers=EXCLUDED.correct_answers,
			elapsed_seconds=EXCLUDED.elapsed_seconds,
			confidence=EXCLUDED.confidence,
			completed=EXCLUDED.completed,
			last_activity=now()
		WHERE NOT group_quiz_progress.completed OR EXCLUDED.completed`,
		update.SessionID, update.UserID, update.CurrentQuestion, update.CurrentSet,
		update.TotalAnswered, update.CorrectAnswers, update.ElapsedSeconds,
		update.Confidence, update.Completed)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptCompleted
	}

	s.appendEvent(ctx, update.SessionID, update.UserID, "upsert", update)
	return nil
}

func (s *ProgressStore) Get(ctx context.Context, sessionID, userID string) (domain.ProgressRecord, error) {
	var record domain.ProgressRecord
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, current_question, current_set, total_answered,
		       correct_answers, elapsed_seconds, confidence, completed, last_activity
		FROM group_quiz_progress WHERE session_id=$1 AND user_id=$2`,
		sessionID, userID).Scan(
		&record.SessionID, &record.UserID, &record.CurrentQuestion, &record.CurrentSet,
		&record.TotalAnswered, &record.CorrectAnswers, &record.ElapsedSeconds,
		&record.Confidence, &record.Completed, &record.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("load progress: %w", err)
	}
	return record, nil
}

func (s *ProgressStore) Delete(ctx context.Context, sessionID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM group_quiz_progress WHERE session_id=$1 AND user_id=$2`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProgressNotFound
	}
	s.appendEvent(ctx, sessionID, userID, "reset", nil)
	return nil
}

// appendEvent records a progress_events audit row. Failures are logged only;
// the audit trail never blocks the main write.
func (s *ProgressStore) appendEvent(ctx context.Context, sessionID, userID, kind string, payload interface{}) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			s.logger.Warn("marshal progress event", "error", err)
			return
		}
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO progress_events (session_id, user_id, kind, payload, created_at)
		VALUES ($1,$2,$3,$4,now())`,
		sessionID, userID, kind, raw); err != nil {
		s.logger.Warn("append progress event", "kind", kind, "error", err)
	}
}

// LeaderboardStore persists session_leaderboard rows.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) Put(ctx context.Context, entry domain.LeaderboardEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_leaderboard
			(session_id, user_id, score_percent, correct_answers, total_answered, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			score_percent=EXCLUDED.score_percent,
			correct_answers=EXCLUDED.correct_answers,
			total_answered=EXCLUDED.total_answered,
			completed_at=EXCLUDED.completed_at`,
		entry.SessionID, entry.UserID, entry.ScorePercent, entry.CorrectAnswers,
		entry.TotalAnswered, entry.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return nil
}

func (s *LeaderboardStore) Get(ctx context.Context, sessionID, userID string) (domain.LeaderboardEntry, error) {
	var entry domain.LeaderboardEntry
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, score_percent, correct_answers, total_answered, completed_at
		FROM session_leaderboard WHERE session_id=$1 AND user_id=$2`,
		sessionID, userID).Scan(
		&entry.SessionID, &entry.UserID, &entry.ScorePercent,
		&entry.CorrectAnswers, &entry.TotalAnswered, &entry.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, domain.ErrProgressNotFound
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("load leaderboard entry: %w", err)
	}
	return entry, nil
}

func (s *LeaderboardStore) List(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, user_id, score_percent, correct_answers, total_answered, completed_at
		FROM session_leaderboard WHERE session_id=$1
		ORDER BY score_percent DESC, completed_at ASC, user_id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.SessionID, &entry.UserID, &entry.ScorePercent,
			&entry.CorrectAnswers, &entry.TotalAnswered, &entry.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
