package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"groupquiz-service/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressStore.
type ProgressStore struct {
	mu      sync.RWMutex
	records map[string]domain.ProgressRecord
	clock   func() time.Time
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		records: make(map[string]domain.ProgressRecord),
		clock:   time.Now,
	}
}

func progressKey(sessionID, userID string) string { return sessionID + "|" + userID }

// Upsert replaces the row for (session, user). A completed=true row is never
// overwritten by a non-completing update.
func (s *ProgressStore) Upsert(_ context.Context, update domain.ProgressUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := progressKey(update.SessionID, update.UserID)
	if existing, ok := s.records[key]; ok && existing.Completed && !update.Completed {
		return domain.ErrAttemptCompleted
	}
	s.records[key] = domain.ProgressRecord{
		SessionID:       update.SessionID,
		UserID:          update.UserID,
		CurrentQuestion: update.CurrentQuestion,
		CurrentSet:      update.CurrentSet,
		TotalAnswered:   update.TotalAnswered,
		CorrectAnswers:  update.CorrectAnswers,
		ElapsedSeconds:  update.ElapsedSeconds,
		Confidence:      update.Confidence,
		Completed:       update.Completed,
		LastActivity:    s.clock(),
	}
	return nil
}

func (s *ProgressStore) Get(_ context.Context, sessionID, userID string) (domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[progressKey(sessionID, userID)]
	if !ok {
		return domain.ProgressRecord{}, domain.ErrProgressNotFound
	}
	return record, nil
}

func (s *ProgressStore) Delete(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey(sessionID, userID)
	if _, ok := s.records[key]; !ok {
		return domain.ErrProgressNotFound
	}
	delete(s.records, key)
	return nil
}

// LeaderboardStore is an in-memory implementation of app.LeaderboardStore.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries map[string]domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{entries: make(map[string]domain.LeaderboardEntry)}
}

func (s *LeaderboardStore) Put(_ context.Context, entry domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[progressKey(entry.SessionID, entry.UserID)] = entry
	return nil
}

func (s *LeaderboardStore) Get(_ context.Context, sessionID, userID string) (domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[progressKey(sessionID, userID)]
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrProgressNotFound
	}
	return entry, nil
}

func (s *LeaderboardStore) List(_ context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.LeaderboardEntry, 0)
	for _, entry := range s.entries {
		if entry.SessionID == sessionID {
			entries = append(entries, entry)
		}
	}
	sortLeaderboard(entries)
	return entries, nil
}

// sortLeaderboard orders by score desc, then earliest completion, then user id.
func sortLeaderboard(entries []domain.LeaderboardEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ScorePercent != entries[j].ScorePercent {
			return entries[i].ScorePercent > entries[j].ScorePercent
		}
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].UserID < entries[j].UserID
	})
}
