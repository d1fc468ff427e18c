package app

import (
	"context"
	"time"

	"groupquiz-service/internal/domain"
)

// ProgressStore persists per-(session,user) advancement records.
// Upsert is full-row replace-on-key, except that a completed=true row must
// never be overwritten by a non-completing update; only Delete clears it.
type ProgressStore interface {
	Upsert(ctx context.Context, update domain.ProgressUpdate) error
	Get(ctx context.Context, sessionID, userID string) (domain.ProgressRecord, error)
	Delete(ctx context.Context, sessionID, userID string) error
}

// LeaderboardStore persists final results per (session, user).
type LeaderboardStore interface {
	Put(ctx context.Context, entry domain.LeaderboardEntry) error
	Get(ctx context.Context, sessionID, userID string) (domain.LeaderboardEntry, error)
	List(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error)
}

// SessionStore persists quiz sessions.
type SessionStore interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	ListByGroup(ctx context.Context, groupID string) ([]domain.Session, error)
	SetStatus(ctx context.Context, id string, status domain.SessionStatus) error
	Delete(ctx context.Context, id string) error
	// ExpireOverdue cancels scheduled sessions whose start time is older than
	// cutoff and reports how many were touched.
	ExpireOverdue(ctx context.Context, cutoff time.Time) (int, error)
}

// QuestionSetRepository resolves a share token to its generated question set.
type QuestionSetRepository interface {
	GetSet(ctx context.Context, token string) (domain.DifficultyGroup, error)
}

// MembershipStore reads study-group membership roles.
type MembershipStore interface {
	Role(ctx context.Context, groupID, userID string) (domain.MemberRole, error)
}

// Notifier publishes results-ready signals to connected clients.
type Notifier interface {
	PublishResultsReady(sessionID, userID string)
}
