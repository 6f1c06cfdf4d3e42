package stream

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sadiqib0/Citypulse/internal/bus"
)

// Manager tracks the live session set. Connect, disconnect and
// broadcast all mutate or iterate the set concurrently, so every access
// goes through the lock; nothing ever iterates it unsynchronized.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	log      *zap.Logger
}

// NewManager creates an empty session registry.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		log:      log,
	}
}

// Add registers a session. The caller only does this after the
// transport handshake has completed.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("client connected",
		zap.String("session_id", s.ID.String()),
		zap.String("channel", s.Channel),
		zap.Int("total_connections", total))
}

// Remove deregisters and closes a session. Removing an absent session
// is a no-op.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	m.log.Info("client disconnected",
		zap.String("session_id", id.String()),
		zap.Int("total_connections", total))
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Broadcast delivers the envelope to every session whose subscribed
// channel matches the envelope's channel, and returns how many sessions
// accepted it. A session that cannot accept the message is evicted;
// that never stalls or aborts delivery to the rest. Within one session,
// envelopes arrive in the order they were handed to the manager.
func (m *Manager) Broadcast(env Envelope) int {
	msg, err := json.Marshal(env)
	if err != nil {
		m.log.Error("failed to marshal broadcast envelope", zap.Error(err))
		return 0
	}

	var dead []uuid.UUID
	delivered := 0

	m.mu.RLock()
	for id, s := range m.sessions {
		if !bus.Match(s.Channel, env.Channel) {
			continue
		}
		if s.deliver(msg) {
			delivered++
		} else {
			dead = append(dead, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range dead {
		m.log.Warn("evicting unresponsive session", zap.String("session_id", id.String()))
		m.Remove(id)
	}
	return delivered
}

// CloseAll tears down every session, used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
