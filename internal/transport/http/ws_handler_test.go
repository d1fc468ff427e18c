package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/infra/memory"
	"groupquiz-service/internal/realtime"
)

func newWSServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewSessionStore()
	if err := store.Create(context.Background(), domain.Session{
		ID:        "s1",
		GroupID:   "g1",
		CreatorID: "u-owner",
		Status:    domain.StatusActive,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	members := memory.NewMembershipStore([]domain.GroupMember{
		{GroupID: "g1", UserID: "u-owner", Role: domain.RoleOwner},
		{GroupID: "g1", UserID: "u-member", Role: domain.RoleMember},
	})
	sessions := app.NewSessionService(store, members, nil)
	hub := realtime.NewHub(nil)
	wsHandler := NewWSHandler(hub, sessions, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dialWS(t *testing.T, server *httptest.Server, userID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?sessionId=s1&userId=" + userID + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func TestWebSocketPreparationFlow(t *testing.T) {
	server := newWSServer(t)

	manager := dialWS(t, server, "u-owner", "Alice")
	joined := readUntil(manager, t, "joined")
	if joined["manager"] != true {
		t.Fatalf("expected manager flag, got %v", joined)
	}

	member := dialWS(t, server, "u-member", "Bob")
	memberJoined := readUntil(member, t, "joined")
	if memberJoined["manager"] != false {
		t.Fatalf("member must not be a manager, got %v", memberJoined)
	}

	update := map[string]any{
		"type": "preparation_update",
		"payload": map[string]any{
			"step": "preset-selection",
			"patch": map[string]any{
				"preset": "toeic-600",
			},
		},
	}
	if err := manager.WriteJSON(update); err != nil {
		t.Fatalf("write preparation update: %v", err)
	}

	// Both sides converge on the same preparation state: the member via the
	// channel broadcast, the manager via the optimistic echo.
	memberState := readUntil(member, t, "preparation_update")
	if memberState["step"] != "preset-selection" {
		t.Fatalf("unexpected broadcast state %v", memberState)
	}
	managerState := readUntil(manager, t, "preparation_update")
	if managerState["step"] != "preset-selection" {
		t.Fatalf("unexpected echo state %v", managerState)
	}
}

func TestWebSocketMemberCannotBroadcast(t *testing.T) {
	server := newWSServer(t)

	member := dialWS(t, server, "u-member", "Bob")
	readUntil(member, t, "joined")

	update := map[string]any{
		"type": "preparation_update",
		"payload": map[string]any{
			"step":  "preset-selection",
			"patch": map[string]any{"preset": "toeic-600"},
		},
	}
	if err := member.WriteJSON(update); err != nil {
		t.Fatalf("write: %v", err)
	}
	payload := readUntil(member, t, "error")
	if payload["message"] == "" {
		t.Fatalf("expected error message, got %v", payload)
	}
}

func TestWebSocketLateJoinerReplaysPreparation(t *testing.T) {
	server := newWSServer(t)

	manager := dialWS(t, server, "u-owner", "Alice")
	readUntil(manager, t, "joined")
	if err := manager.WriteJSON(map[string]any{
		"type": "preparation_update",
		"payload": map[string]any{
			"step":  "ready-to-start",
			"patch": map[string]any{"questionsReady": true},
		},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(manager, t, "preparation_update")

	late := dialWS(t, server, "u-member", "Carol")
	readUntil(late, t, "joined")
	state := readUntil(late, t, "preparation_update")
	if state["step"] != "ready-to-start" {
		t.Fatalf("late joiner should replay latest state, got %v", state)
	}
}

func TestWebSocketStartSession(t *testing.T) {
	server := newWSServer(t)

	manager := dialWS(t, server, "u-owner", "Alice")
	readUntil(manager, t, "joined")
	member := dialWS(t, server, "u-member", "Bob")
	readUntil(member, t, "joined")

	if err := manager.WriteJSON(map[string]any{"type": "start_session"}); err != nil {
		t.Fatalf("write start: %v", err)
	}

	payload := readUntil(member, t, "quiz_session_starting")
	if payload["sessionId"] != "s1" {
		t.Fatalf("unexpected start payload %v", payload)
	}
	if payload["countdownSeconds"] != float64(realtime.StartCountdownSeconds) {
		t.Fatalf("expected countdown %d, got %v", realtime.StartCountdownSeconds, payload["countdownSeconds"])
	}
}
