// Package realtime implements the topic-based pub/sub channel used to keep a
// session's manager and members in sync during quiz preparation and start.
package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"groupquiz-service/internal/domain"
)

// Client identifies one connected subscriber.
type Client struct {
	ID          string
	UserID      string
	DisplayName string
	Manager     bool
}

// Bridge fans broadcasts out to other service instances. Publish failures
// must be swallowed by implementations apart from logging; the hub never
// rolls back local state on a failed publish.
type Bridge interface {
	Publish(ctx context.Context, ev Event) error
}

// Liveness marks topics with at least one subscriber in a shared index so
// other instances can display online counts. Advisory only.
type Liveness interface {
	Touch(topic string)
	Clear(topic string)
}

type topicState struct {
	subs     map[string]chan Event
	presence map[string]domain.Participant
	prep     domain.PreparationState
	prepSet  bool
}

// Hub routes events between subscribers of named topics. Broadcast is
// at-least-once with no acknowledgment: the broadcaster's local state is
// updated before fanout, and delivery failures are logged, never retried.
type Hub struct {
	instanceID string
	logger     *slog.Logger
	bridge     Bridge
	liveness   Liveness

	mu     sync.RWMutex
	topics map[string]*topicState
}

// Option configures the hub.
type Option func(*Hub)

// WithBridge attaches a cross-instance publisher.
func WithBridge(b Bridge) Option { return func(h *Hub) { h.bridge = b } }

// WithLiveness attaches a shared topic-liveness index.
func WithLiveness(l Liveness) Option { return func(h *Hub) { h.liveness = l } }

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		instanceID: uuid.NewString(),
		logger:     logger,
		topics:     make(map[string]*topicState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InstanceID identifies this hub for cross-instance loop suppression.
func (h *Hub) InstanceID() string { return h.instanceID }

// SetBridge attaches a cross-instance publisher after construction, for
// bridges that need the hub's instance id first.
func (h *Hub) SetBridge(b Bridge) { h.bridge = b }

// Subscribe joins a topic. The client's identity and manager flag enter the
// topic's presence set, and a presence snapshot is broadcast to everyone.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(topic string, c Client) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	state := h.topics[topic]
	if state == nil {
		state = &topicState{
			subs:     make(map[string]chan Event),
			presence: make(map[string]domain.Participant),
		}
		h.topics[topic] = state
		if h.liveness != nil {
			h.liveness.Touch(topic)
		}
	}
	state.subs[c.ID] = ch
	state.presence[c.ID] = domain.Participant{
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		Manager:     c.Manager,
		Online:      true,
		JoinedAt:    time.Now(),
	}
	snapshot := presenceLocked(state)
	h.mu.Unlock()

	h.deliver(topic, Event{
		Type:    EventPresence,
		Topic:   topic,
		At:      time.Now(),
		Payload: snapshot,
	})

	cancel := func() {
		h.mu.Lock()
		state, ok := h.topics[topic]
		if !ok {
			h.mu.Unlock()
			return
		}
		if _, subscribed := state.subs[c.ID]; !subscribed {
			h.mu.Unlock()
			return
		}
		delete(state.subs, c.ID)
		delete(state.presence, c.ID)
		close(ch)
		empty := len(state.subs) == 0
		var snapshot PresenceSnapshot
		if empty {
			delete(h.topics, topic)
			if h.liveness != nil {
				h.liveness.Clear(topic)
			}
		} else {
			snapshot = presenceLocked(state)
		}
		h.mu.Unlock()

		if !empty {
			h.deliver(topic, Event{
				Type:    EventPresence,
				Topic:   topic,
				At:      time.Now(),
				Payload: snapshot,
			})
		}
	}
	return ch, cancel
}

// Preparation returns the latest preparation state retained for a topic, so
// late joiners can reconstruct it without waiting for the next broadcast.
func (h *Hub) Preparation(topic string) (domain.PreparationState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.topics[topic]
	if !ok || !state.prepSet {
		return domain.PreparationState{}, false
	}
	return state.prep, true
}

// BroadcastPreparationUpdate merges a manager's patch into the topic's shared
// preparation state and fans the result out. The local state is applied
// before any cross-instance publish; there is no rollback on failure.
func (h *Hub) BroadcastPreparationUpdate(ctx context.Context, topic string, c Client, step domain.PreparationStep, patch PreparationPatch) (domain.PreparationState, error) {
	if !c.Manager {
		return domain.PreparationState{}, domain.ErrNotManager
	}

	h.mu.Lock()
	state, ok := h.topics[topic]
	if !ok {
		h.mu.Unlock()
		return domain.PreparationState{}, domain.ErrNotConnected
	}
	if _, subscribed := state.subs[c.ID]; !subscribed {
		h.mu.Unlock()
		return domain.PreparationState{}, domain.ErrNotConnected
	}
	next, err := ApplyPreparationUpdate(state.prep, step, patch, c.UserID, time.Now())
	if err != nil {
		h.mu.Unlock()
		return domain.PreparationState{}, err
	}
	state.prep = next
	state.prepSet = true
	h.mu.Unlock()

	ev := Event{
		Type:    EventPreparationUpdate,
		Topic:   topic,
		Origin:  c.ID,
		At:      next.UpdatedAt,
		Payload: next,
	}
	h.deliver(topic, ev)
	h.publish(ctx, ev)
	return next, nil
}

// StartCountdownSeconds is the fixed countdown attached to start events.
const StartCountdownSeconds = 5

// BroadcastSessionStart announces an imminent start on the session topic and
// on the owning group's topic, so members not viewing the session hear it too.
func (h *Hub) BroadcastSessionStart(ctx context.Context, sessionID, groupID string, c Client) error {
	if !c.Manager {
		return domain.ErrNotManager
	}
	sessionTopic := SessionTopic(sessionID)

	h.mu.RLock()
	state, ok := h.topics[sessionTopic]
	subscribed := ok && state.subs[c.ID] != nil
	h.mu.RUnlock()
	if !subscribed {
		return domain.ErrNotConnected
	}

	payload := SessionStarting{
		SessionID:        sessionID,
		StartedBy:        c.UserID,
		CountdownSeconds: StartCountdownSeconds,
	}
	for _, topic := range []string{sessionTopic, GroupTopic(groupID)} {
		ev := Event{
			Type:    EventSessionStarting,
			Topic:   topic,
			Origin:  c.ID,
			At:      time.Now(),
			Payload: payload,
		}
		h.deliver(topic, ev)
		h.publish(ctx, ev)
	}
	return nil
}

// PublishResultsReady signals subscribers that a user's results are persisted.
func (h *Hub) PublishResultsReady(sessionID, userID string) {
	ev := Event{
		Type:    EventResultsReady,
		Topic:   SessionTopic(sessionID),
		At:      time.Now(),
		Payload: ResultsReady{SessionID: sessionID, UserID: userID},
	}
	h.deliver(ev.Topic, ev)
	h.publish(context.Background(), ev)
}

// InjectRemote delivers an event received from another instance to local
// subscribers without republishing it.
func (h *Hub) InjectRemote(ev Event) {
	if ev.Type == EventPreparationUpdate {
		// Retain remote preparation state for late local joiners.
		if prep, ok := ev.Payload.(domain.PreparationState); ok {
			h.mu.Lock()
			if state, exists := h.topics[ev.Topic]; exists {
				state.prep = prep
				state.prepSet = true
			}
			h.mu.Unlock()
		}
	}
	h.deliver(ev.Topic, ev)
}

// deliver fans an event out to local subscribers, skipping the origin client.
// A full subscriber buffer drops its oldest event rather than blocking.
func (h *Hub) deliver(topic string, ev Event) {
	h.mu.RLock()
	state, ok := h.topics[topic]
	if !ok {
		h.mu.RUnlock()
		return
	}
	for clientID, ch := range state.subs {
		if ev.Origin != "" && clientID == ev.Origin {
			continue
		}
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) publish(ctx context.Context, ev Event) {
	if h.bridge == nil {
		return
	}
	if err := h.bridge.Publish(ctx, ev); err != nil {
		h.logger.Warn("broadcast publish failed", "topic", ev.Topic, "type", ev.Type, "error", err)
	}
}

func presenceLocked(state *topicState) PresenceSnapshot {
	participants := make([]domain.Participant, 0, len(state.presence))
	for _, p := range state.presence {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
	return PresenceSnapshot{Participants: participants}
}
