package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LivenessIndex marks topics with live subscribers in Redis so other
// instances can read "N participants online" displays. Advisory only; keys
// expire on their own if an instance dies without cleaning up.
type LivenessIndex struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLivenessIndex(client *redis.Client, ttl time.Duration) *LivenessIndex {
	return &LivenessIndex{client: client, ttl: ttl}
}

func (l *LivenessIndex) Touch(topic string) {
	_ = l.client.Set(context.Background(), l.key(topic), "1", l.ttl).Err()
}

func (l *LivenessIndex) Clear(topic string) {
	_ = l.client.Del(context.Background(), l.key(topic)).Err()
}

// IsLive reports whether some instance has subscribers on the topic.
func (l *LivenessIndex) IsLive(ctx context.Context, topic string) bool {
	n, err := l.client.Exists(ctx, l.key(topic)).Result()
	return err == nil && n > 0
}

func (l *LivenessIndex) key(topic string) string {
	return "groupquiz:live:" + topic
}
