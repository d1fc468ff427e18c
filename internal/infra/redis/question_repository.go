package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/infra/memory"
)

// QuestionSetRepository caches generated question sets in Redis, keyed by
// share token, and falls back to a loader on cache miss.
// Sets are stored as: SET groupquiz:set:{token} {json} EX ttl
type QuestionSetRepository struct {
	client *redis.Client
	loader memory.QuestionSetLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionSetRepository(client *redis.Client, loader memory.QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionSetRepository) GetSet(ctx context.Context, token string) (domain.DifficultyGroup, error) {
	key := r.key(token)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var set domain.DifficultyGroup
		if err := json.Unmarshal(raw, &set); err == nil {
			return set, nil
		}
		// Corrupted cache entry; fall through and refill.
	}

	result, err, _ := r.sf.Do(token, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var set domain.DifficultyGroup
			if err := json.Unmarshal(raw, &set); err == nil {
				return set, nil
			}
		}

		set, err := r.loader.LoadSet(ctx, token)
		if err != nil {
			return domain.DifficultyGroup{}, err
		}

		if raw, err := json.Marshal(set); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.DifficultyGroup{}, err
	}
	return result.(domain.DifficultyGroup), nil
}

func (r *QuestionSetRepository) key(token string) string {
	return "groupquiz:set:" + token
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
