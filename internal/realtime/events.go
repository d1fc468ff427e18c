package realtime

import (
	"time"

	"groupquiz-service/internal/domain"
)

// EventType tags messages flowing over a session or group topic.
type EventType string

const (
	EventPreparationUpdate EventType = "preparation_update"
	EventSessionStarting   EventType = "quiz_session_starting"
	EventPresence          EventType = "presence"
	EventResultsReady      EventType = "results_ready"
)

// Event is one message delivered to topic subscribers. Origin carries the
// broadcasting client's id so receivers can drop their own echoes.
type Event struct {
	Type    EventType   `json:"type"`
	Topic   string      `json:"topic"`
	Origin  string      `json:"origin,omitempty"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// SessionStarting announces an imminent quiz start with a fixed countdown.
type SessionStarting struct {
	SessionID        string `json:"sessionId"`
	StartedBy        string `json:"startedBy"`
	CountdownSeconds int    `json:"countdownSeconds"`
}

// PresenceSnapshot lists the clients currently tracked on a topic.
type PresenceSnapshot struct {
	Participants []domain.Participant `json:"participants"`
}

// ResultsReady signals that a user's final results are persisted.
type ResultsReady struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// SessionTopic names the channel scoped to one quiz session.
func SessionTopic(sessionID string) string { return "session:" + sessionID }

// GroupTopic names the group-wide channel used for start notifications.
func GroupTopic(groupID string) string { return "group:" + groupID }
