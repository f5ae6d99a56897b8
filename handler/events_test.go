package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnTengye/legalease/backend/model"
	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func readWSEvent(t *testing.T, conn *websocket.Conn) service.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var ev service.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	return ev
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.createSession(t)

	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	initial := readWSEvent(t, conn)
	if initial.Type != service.EventState || initial.State != model.StateIdle {
		t.Errorf("Unexpected initial event %+v", initial)
	}

	eventually(t, func() bool { return env.hub.Subscribers(id) == 1 })

	w := env.do("POST", "/api/sessions/"+id+"/analyze?wait=true", gin.H{"text": leaseText})
	if w.Code != 200 {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if ev := readWSEvent(t, conn); ev.State != model.StateLoading {
		t.Errorf("Expected loading event, got %+v", ev)
	}
	if ev := readWSEvent(t, conn); ev.State != model.StateReady {
		t.Errorf("Expected ready event, got %+v", ev)
	}
}

func TestEventsUnknownSession(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do("GET", "/api/sessions/missing/events", nil)
	if w.Code != 404 {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
