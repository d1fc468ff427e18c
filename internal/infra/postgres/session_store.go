package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"groupquiz-service/internal/domain"
)

// SessionStore persists quiz_sessions rows.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	tokens, err := json.Marshal(session.QuestionTokens)
	if err != nil {
		return fmt.Errorf("marshal question tokens: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions
			(id, group_id, creator_id, title, status, scheduled_at, question_tokens, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		session.ID, session.GroupID, session.CreatorID, session.Title, session.Status,
		session.ScheduledAt, tokens, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	var (
		session domain.Session
		tokens  []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, group_id, creator_id, title, status, scheduled_at, question_tokens, created_at, updated_at
		FROM quiz_sessions WHERE id=$1`, id).Scan(
		&session.ID, &session.GroupID, &session.CreatorID, &session.Title, &session.Status,
		&session.ScheduledAt, &tokens, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &session.QuestionTokens); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal question tokens: %w", err)
		}
	}
	return session, nil
}

func (s *SessionStore) ListByGroup(ctx context.Context, groupID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, creator_id, title, status, scheduled_at, question_tokens, created_at, updated_at
		FROM quiz_sessions WHERE group_id=$1 ORDER BY created_at ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var (
			session domain.Session
			tokens  []byte
		)
		if err := rows.Scan(&session.ID, &session.GroupID, &session.CreatorID, &session.Title,
			&session.Status, &session.ScheduledAt, &tokens, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(tokens) > 0 {
			if err := json.Unmarshal(tokens, &session.QuestionTokens); err != nil {
				return nil, fmt.Errorf("unmarshal question tokens: %w", err)
			}
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) SetStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quiz_sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) ExpireOverdue(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions SET status=$1, updated_at=now()
		WHERE status=$2 AND scheduled_at IS NOT NULL AND scheduled_at < $3`,
		domain.StatusCancelled, domain.StatusScheduled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MembershipStore reads study_group_members rows.
type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) Role(ctx context.Context, groupID, userID string) (domain.MemberRole, error) {
	var role domain.MemberRole
	err := s.pool.QueryRow(ctx, `
		SELECT role FROM study_group_members WHERE group_id=$1 AND user_id=$2`,
		groupID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load member role: %w", err)
	}
	return role, nil
}
