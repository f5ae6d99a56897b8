package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxReadBytes   = 512
	sendBufferSize = 64
)

// Hub fans session events out to websocket subscribers of that session
type Hub struct {
	subscribers map[string]map[*Subscriber]bool
	broadcast   chan hubMessage
	register    chan *Subscriber
	unregister  chan *Subscriber
	done        chan struct{}
	mutex       sync.RWMutex
}

type hubMessage struct {
	sessionID string
	data      []byte
}

// Subscriber is one websocket connection watching one session
type Subscriber struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]bool),
		broadcast:   make(chan hubMessage, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

// Run dispatches until ctx is done, then closes every subscriber
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for id, subs := range h.subscribers {
				for sub := range subs {
					close(sub.send)
				}
				delete(h.subscribers, id)
			}
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			h.mutex.Lock()
			subs := h.subscribers[sub.sessionID]
			if subs == nil {
				subs = make(map[*Subscriber]bool)
				h.subscribers[sub.sessionID] = subs
			}
			subs[sub] = true
			h.mutex.Unlock()
			slog.Debug("websocket subscriber connected", "session_id", sub.sessionID, "subscribers", len(subs))

		case sub := <-h.unregister:
			h.remove(sub)
			slog.Debug("websocket subscriber disconnected", "session_id", sub.sessionID)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			var slow []*Subscriber
			for sub := range h.subscribers[msg.sessionID] {
				select {
				case sub.send <- msg.data:
				default:
					slow = append(slow, sub)
				}
			}
			h.mutex.RUnlock()
			for _, sub := range slow {
				slog.Warn("dropping slow websocket subscriber", "session_id", sub.sessionID)
				h.remove(sub)
			}
		}
	}
}

func (h *Hub) remove(sub *Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	subs := h.subscribers[sub.sessionID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.subscribers, sub.sessionID)
	}
}

// Publish queues an event for the session's subscribers without blocking
func (h *Hub) Publish(sessionID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode session event", "session_id", sessionID, "error", err)
		return
	}
	select {
	case h.broadcast <- hubMessage{sessionID: sessionID, data: data}:
	default:
		slog.Warn("event queue full, dropping session event", "session_id", sessionID, "type", ev.Type)
	}
}

// Subscribers returns the number of live subscribers of a session
func (h *Hub) Subscribers(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers[sessionID])
}

// Attach registers an upgraded connection for a session, queues the
// initial event and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, sessionID string, initial Event) {
	sub := &Subscriber{
		hub:       h,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
	if data, err := json.Marshal(initial); err == nil {
		sub.send <- data
	}
	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}

// readPump only handles control frames; clients don't send commands
func (s *Subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxReadBytes)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "session_id", s.sessionID, "error", err)
			}
			return
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
