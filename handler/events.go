package handler

import (
	"net/http"

	"github.com/AnTengye/legalease/backend/pkg/logger"
	"github.com/AnTengye/legalease/backend/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same as the CORS policy
	},
	EnableCompression: true,
}

type EventsHandler struct {
	sessions *SessionHandler
	hub      *service.Hub
}

func NewEventsHandler(sessions *SessionHandler, hub *service.Hub) *EventsHandler {
	return &EventsHandler{sessions: sessions, hub: hub}
}

// Stream upgrades to a websocket and pushes the session's state and
// message events, starting with the current state.
func (h *EventsHandler) Stream(c *gin.Context) {
	sess := h.sessions.lookup(c)
	if sess == nil {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}

	snap := sess.Snapshot()
	h.hub.Attach(conn, sess.ID, service.Event{
		Type:       service.EventState,
		SessionID:  sess.ID,
		State:      snap.State,
		Generation: snap.Generation,
		Error:      snap.Error,
	})
}
