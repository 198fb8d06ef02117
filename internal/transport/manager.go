package transport

import (
	"sync"
	"sync/atomic"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/stage"
)

// Manager is the Session Manager (spec.md §4.2): session_id↔Session and
// account_id↔session_id bookkeeping, plus duplicate-login eviction.
type Manager struct {
	mu        sync.RWMutex
	bySession map[int64]*Session
	byAccount map[int64]int64

	idSeq atomic.Int64
}

// NewManager builds an empty Session Manager.
func NewManager() *Manager {
	return &Manager{
		bySession: make(map[int64]*Session),
		byAccount: make(map[int64]int64),
	}
}

// NextSessionID allocates a process-wide unique session id.
func (m *Manager) NextSessionID() int64 { return m.idSeq.Add(1) }

// Register records s as the session. If accountID already has a
// different live session attached, that older session is sent a
// KickNotification and closed (spec.md §4.3, "duplicate login") -- the
// evicted Session is returned (nil when there was none), which the
// handshake uses to tell a duplicate login from a fresh join.
func (m *Manager) Register(accountID int64, s *Session) *Session {
	m.mu.Lock()
	var evicted *Session
	if oldID, ok := m.byAccount[accountID]; ok {
		if old, ok := m.bySession[oldID]; ok && old.ID != s.ID {
			evicted = old
		}
	}
	m.bySession[s.ID] = s
	m.byAccount[accountID] = s.ID
	m.mu.Unlock()

	if evicted != nil {
		evicted.Send(&model.Packet{
			MsgID:   model.MsgKickNotification,
			Payload: []byte(`{"reason":"duplicate_login"}`),
		})
		evicted.Close(model.DisconnectDuplicateLogin)
	}
	return evicted
}

// Get resolves a session_id to its Session as a stage.SessionSender. It
// implements stage.SessionLookup.
func (m *Manager) Get(sessionID int64) (stage.SessionSender, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return s, true
}

// Find returns the concrete Session, for adapters that need more than
// the narrow SessionSender contract (heartbeat checks, violation counts).
func (m *Manager) Find(sessionID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySession[sessionID]
	return s, ok
}

// Unregister removes a session (called once its Close has run and any
// owning stage has been told about the disconnect).
func (m *Manager) Unregister(sessionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return
	}
	delete(m.bySession, sessionID)
	if m.byAccount[s.AccountID] == sessionID {
		delete(m.byAccount, s.AccountID)
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession)
}
