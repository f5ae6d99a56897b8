package service

import (
	"log/slog"
	"sort"
	"sync"
)

// SessionStore is an in-memory store for sessions
type SessionStore struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	maxSessions int // 0 = unlimited
}

func NewSessionStore(maxSessions int) *SessionStore {
	if maxSessions < 0 {
		maxSessions = 0
	}
	slog.Info("session store initialized", "max_sessions", maxSessions)
	return &SessionStore{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

func (s *SessionStore) Save(session *Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	evicted := s.cleanupIfNeeded()
	s.mu.Unlock()

	for _, old := range evicted {
		old.Reset()
	}
}

func (s *SessionStore) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// GetByTenant returns a tenant's sessions, oldest first
func (s *SessionStore) GetByTenant(tenant string) []*Session {
	s.mu.RLock()
	var result []*Session
	for _, sess := range s.sessions {
		if sess.Tenant == tenant {
			result = append(result, sess)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete removes the session and resets it so any in-flight work is abandoned
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.Reset()
	}
	return ok
}

// cleanupIfNeeded drops the oldest sessions beyond maxSessions and returns them.
// Must be called with lock held
func (s *SessionStore) cleanupIfNeeded() []*Session {
	if s.maxSessions <= 0 || len(s.sessions) <= s.maxSessions {
		return nil
	}

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	removeCount := len(sessions) - s.maxSessions
	evicted := sessions[:removeCount]
	for _, sess := range evicted {
		slog.Info("evicting old session",
			"session_id", sess.ID,
			"tenant", sess.Tenant,
			"created_at", sess.CreatedAt,
		)
		delete(s.sessions, sess.ID)
	}
	return evicted
}

// Count returns the number of sessions in the store
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
