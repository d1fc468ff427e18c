package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"groupquiz-service/internal/domain"
)

// QuestionSetLoader fetches a generated question set from a backing store.
type QuestionSetLoader interface {
	LoadSet(ctx context.Context, token string) (domain.DifficultyGroup, error)
}

// QuestionSetRepository caches question sets by share token with TTL to avoid
// repeated backing-store hits during a session.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.DifficultyGroup
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionSetRepository) GetSet(ctx context.Context, token string) (domain.DifficultyGroup, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[token]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.set, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(token, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[token]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.set, nil
		}
		r.mu.RUnlock()

		set, err := r.loader.LoadSet(ctx, token)
		if err != nil {
			return domain.DifficultyGroup{}, err
		}

		r.mu.Lock()
		r.cache[token] = cachedSet{
			set:       set,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.DifficultyGroup{}, err
	}
	return result.(domain.DifficultyGroup), nil
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticSetLoader serves question sets from an in-memory map, keyed by share
// token (useful for tests and redis/postgres-less runs).
type StaticSetLoader struct {
	sets map[string]domain.DifficultyGroup
}

func NewStaticSetLoader(sets map[string]domain.DifficultyGroup) *StaticSetLoader {
	return &StaticSetLoader{sets: sets}
}

func (l *StaticSetLoader) LoadSet(_ context.Context, token string) (domain.DifficultyGroup, error) {
	if set, ok := l.sets[token]; ok {
		return set, nil
	}
	return domain.DifficultyGroup{}, domain.ErrQuestionSetNotFound
}
