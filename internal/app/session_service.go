package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"groupquiz-service/internal/domain"
)

// SessionService owns quiz session lifecycle: creation by group managers,
// explicit start/complete/cancel transitions, deletion, and time-based expiry
// of overdue scheduled sessions.
type SessionService struct {
	sessions SessionStore
	members  MembershipStore
	clock    func() time.Time
	logger   *slog.Logger
}

func NewSessionService(sessions SessionStore, members MembershipStore, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions: sessions,
		members:  members,
		clock:    time.Now,
		logger:   logger,
	}
}

// CreateSession registers a new session. Only group owners/admins may create.
// A future scheduledAt yields a scheduled session, otherwise it starts active.
func (s *SessionService) CreateSession(ctx context.Context, groupID, creatorID, title string, scheduledAt *time.Time, questionTokens map[string]string) (domain.Session, error) {
	if err := s.requireGroupManager(ctx, groupID, creatorID); err != nil {
		return domain.Session{}, err
	}

	now := s.clock()
	status := domain.StatusActive
	if scheduledAt != nil && scheduledAt.After(now) {
		status = domain.StatusScheduled
	}
	session := domain.Session{
		ID:             uuid.NewString(),
		GroupID:        groupID,
		CreatorID:      creatorID,
		Title:          title,
		Status:         status,
		ScheduledAt:    scheduledAt,
		QuestionTokens: questionTokens,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get returns one session.
func (s *SessionService) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ListByGroup returns the group's sessions.
func (s *SessionService) ListByGroup(ctx context.Context, groupID string) ([]domain.Session, error) {
	return s.sessions.ListByGroup(ctx, groupID)
}

// Start moves a scheduled session to active.
func (s *SessionService) Start(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, userID, domain.StatusActive)
}

// Complete finishes an active session.
func (s *SessionService) Complete(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, userID, domain.StatusCompleted)
}

// Cancel aborts a scheduled or active session.
func (s *SessionService) Cancel(ctx context.Context, sessionID, userID string) (domain.Session, error) {
	return s.transition(ctx, sessionID, userID, domain.StatusCancelled)
}

// Delete removes a session outright; managers only.
func (s *SessionService) Delete(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	manager, err := s.IsManager(ctx, session, userID)
	if err != nil {
		return err
	}
	if !manager {
		return domain.ErrNotManager
	}
	return s.sessions.Delete(ctx, sessionID)
}

// IsManager reports whether userID may broadcast and drive the session:
// the session's creator, or a group owner/admin.
func (s *SessionService) IsManager(ctx context.Context, session domain.Session, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if session.CreatorID == userID {
		return true, nil
	}
	role, err := s.members.Role(ctx, session.GroupID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == domain.RoleOwner || role == domain.RoleAdmin, nil
}

// ExpireOverdue cancels scheduled sessions whose start time passed more than
// grace ago. Run periodically by the server loop.
func (s *SessionService) ExpireOverdue(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.clock().Add(-grace)
	n, err := s.sessions.ExpireOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire overdue sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired overdue sessions", "count", n)
	}
	return n, nil
}

var legalTransitions = map[domain.SessionStatus][]domain.SessionStatus{
	domain.StatusScheduled: {domain.StatusActive, domain.StatusCancelled},
	domain.StatusActive:    {domain.StatusCompleted, domain.StatusCancelled},
}

func (s *SessionService) transition(ctx context.Context, sessionID, userID string, target domain.SessionStatus) (domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	manager, err := s.IsManager(ctx, session, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if !manager {
		return domain.Session{}, domain.ErrNotManager
	}
	if !transitionAllowed(session.Status, target) {
		return domain.Session{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, session.Status, target)
	}
	if err := s.sessions.SetStatus(ctx, sessionID, target); err != nil {
		return domain.Session{}, err
	}
	session.Status = target
	session.UpdatedAt = s.clock()
	return session, nil
}

func transitionAllowed(from, to domain.SessionStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *SessionService) requireGroupManager(ctx context.Context, groupID, userID string) error {
	role, err := s.members.Role(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if role != domain.RoleOwner && role != domain.RoleAdmin {
		return domain.ErrNotManager
	}
	return nil
}
