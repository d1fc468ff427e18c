package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"groupquiz-service/internal/domain"
)

const bridgeChannel = "groupquiz:broadcasts"

// envelope wraps an event with the publishing instance id so an instance can
// skip messages it published itself.
type envelope struct {
	Instance string          `json:"instance"`
	Type     EventType       `json:"type"`
	Topic    string          `json:"topic"`
	Origin   string          `json:"origin,omitempty"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// RedisBridge fans hub broadcasts out across service instances over Redis
// pub/sub. Loss of the subscription silently disables cross-instance fanout
// until Run is restarted; there is no retry loop.
type RedisBridge struct {
	client     *redis.Client
	instanceID string
	logger     *slog.Logger
}

func NewRedisBridge(client *redis.Client, instanceID string, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{client: client, instanceID: instanceID, logger: logger}
}

// Publish sends one event to the shared channel.
func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		Instance: b.instanceID,
		Type:     ev.Type,
		Topic:    ev.Topic,
		Origin:   ev.Origin,
		At:       ev.At,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, bridgeChannel, data).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Run subscribes to the shared channel and re-injects remote events into the
// hub until ctx is canceled. It blocks; run it in its own goroutine.
func (b *RedisBridge) Run(ctx context.Context, hub *Hub) {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				b.logger.Warn("broadcast subscription closed")
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed broadcast envelope", "error", err)
				continue
			}
			if env.Instance == b.instanceID {
				continue
			}
			hub.InjectRemote(Event{
				Type:    env.Type,
				Topic:   env.Topic,
				Origin:  env.Origin,
				At:      env.At,
				Payload: decodePayload(env.Type, env.Payload, b.logger),
			})
		}
	}
}

// decodePayload restores the typed payload for known event types so local
// consumers see the same shapes regardless of which instance broadcast.
func decodePayload(typ EventType, raw json.RawMessage, logger *slog.Logger) interface{} {
	if len(raw) == 0 {
		return nil
	}
	switch typ {
	case EventPreparationUpdate:
		var prep domain.PreparationState
		if err := json.Unmarshal(raw, &prep); err != nil {
			logger.Warn("dropping malformed preparation payload", "error", err)
			return nil
		}
		return prep
	case EventSessionStarting:
		var starting SessionStarting
		if err := json.Unmarshal(raw, &starting); err != nil {
			logger.Warn("dropping malformed start payload", "error", err)
			return nil
		}
		return starting
	case EventResultsReady:
		var ready ResultsReady
		if err := json.Unmarshal(raw, &ready); err != nil {
			logger.Warn("dropping malformed results payload", "error", err)
			return nil
		}
		return ready
	}
	return raw
}
