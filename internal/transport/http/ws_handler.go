package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/realtime"
)

// WSHandler upgrades clients onto a session's realtime channel: presence on
// join, manager-gated preparation/start broadcasts inbound, channel events
// outbound.
type WSHandler struct {
	hub      *realtime.Hub
	sessions *app.SessionService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(hub *realtime.Hub, sessions *app.SessionService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:      hub,
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type preparationPayload struct {
	Step  domain.PreparationStep    `json:"step"`
	Patch realtime.PreparationPatch `json:"patch"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS joins the caller to the session channel and pumps events both ways.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if sessionID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing sessionId, userId, or name", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	manager, err := h.sessions.IsManager(r.Context(), session, userID)
	if err != nil {
		h.logger.Warn("manager check failed, treating as member", "session", sessionID, "user", userID, "error", err)
		manager = false
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := realtime.Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		Manager:     manager,
	}
	topic := realtime.SessionTopic(sessionID)
	events, cancel := h.hub.Subscribe(topic, client)
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write error", "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "joined", Payload: map[string]interface{}{
		"sessionId": sessionID,
		"clientId":  client.ID,
		"manager":   manager,
	}}
	// Late joiners reconstruct preparation state from the latest broadcast.
	if prep, ok := h.hub.Preparation(topic); ok {
		send <- outboundMessage{Type: string(realtime.EventPreparationUpdate), Payload: prep}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "preparation_update":
			var payload preparationPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid preparation payload"}}
				continue
			}
			state, err := h.hub.BroadcastPreparationUpdate(r.Context(), topic, client, payload.Step, payload.Patch)
			if err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			// Optimistic local echo: the broadcaster sees its own state
			// immediately without waiting for a round trip.
			send <- outboundMessage{Type: string(realtime.EventPreparationUpdate), Payload: state}
		case "start_session":
			if err := h.hub.BroadcastSessionStart(r.Context(), sessionID, session.GroupID, client); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage{Type: string(realtime.EventSessionStarting), Payload: realtime.SessionStarting{
				SessionID:        sessionID,
				StartedBy:        userID,
				CountdownSeconds: realtime.StartCountdownSeconds,
			}}
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
