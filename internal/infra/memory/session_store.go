package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"groupquiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	clock    func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		clock:    time.Now,
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) ListByGroup(_ context.Context, groupID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]domain.Session, 0)
	for _, session := range s.sessions {
		if session.GroupID == groupID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *SessionStore) SetStatus(_ context.Context, id string, status domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Status = status
	session.UpdatedAt = s.clock()
	s.sessions[id] = session
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) ExpireOverdue(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for id, session := range s.sessions {
		if session.Status == domain.StatusScheduled && session.ScheduledAt != nil && session.ScheduledAt.Before(cutoff) {
			session.Status = domain.StatusCancelled
			session.UpdatedAt = s.clock()
			s.sessions[id] = session
			expired++
		}
	}
	return expired, nil
}

// MembershipStore is an in-memory implementation of app.MembershipStore,
// seeded with a fixed member set.
type MembershipStore struct {
	mu      sync.RWMutex
	members map[string]domain.GroupMember
}

func NewMembershipStore(members []domain.GroupMember) *MembershipStore {
	store := &MembershipStore{members: make(map[string]domain.GroupMember, len(members))}
	for _, m := range members {
		store.members[m.GroupID+"|"+m.UserID] = m
	}
	return store
}

func (s *MembershipStore) Role(_ context.Context, groupID, userID string) (domain.MemberRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[groupID+"|"+userID]
	if !ok {
		return "", domain.ErrMemberNotFound
	}
	return member.Role, nil
}
