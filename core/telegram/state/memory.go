package state

import (
	"context"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

// MemoryOption customises the in-memory manager.
type MemoryOption func(*memoryManager)

// WithIdleTTL sets how long a session may stay untouched before eviction.
// Non-positive values disable eviction.
func WithIdleTTL(ttl time.Duration) MemoryOption {
	return func(m *memoryManager) { m.idleTTL = ttl }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *memoryManager) {
		if now != nil {
			m.now = now
		}
	}
}

// MemoryManager is the in-process Manager implementation.
type MemoryManager struct {
	*memoryManager
}

// NewMemoryManager constructs an in-memory Manager with idle eviction.
func NewMemoryManager(opts ...MemoryOption) *MemoryManager {
	m := &memoryManager{
		sessions: make(map[int64]*Session),
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return &MemoryManager{memoryManager: m}
}

func (m *memoryManager) expired(s *Session) bool {
	return m.idleTTL > 0 && m.now().Sub(s.UpdatedAt) > m.idleTTL
}

// lookup returns a live session; callers must hold at least the read lock.
func (m *memoryManager) lookup(userID int64) (*Session, bool) {
	s, ok := m.sessions[userID]
	if !ok || m.expired(s) {
		return nil, false
	}
	return s, true
}

// touch returns the live session for writing, creating a fresh one if needed.
// Callers must hold the write lock.
func (m *memoryManager) touch(userID int64) *Session {
	s, ok := m.lookup(userID)
	if !ok {
		s = newSession()
		m.sessions[userID] = s
	}
	s.UpdatedAt = m.now()
	return s
}

// Get returns a copy of the user's session, or an idle session if none exists.
func (m *memoryManager) Get(userID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.lookup(userID)
	if !ok {
		return newSession()
	}
	cp := &Session{State: s.State, UpdatedAt: s.UpdatedAt, TempData: make(map[string]any, len(s.TempData))}
	for k, v := range s.TempData {
		cp.TempData[k] = v
	}
	return cp
}

// SetTemp stores a temporary key/value pair for the given user session.
func (m *memoryManager) SetTemp(userID int64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(userID).TempData[key] = value
}

// GetTemp retrieves a temporary value by key for the given user session.
func (m *memoryManager) GetTemp(userID int64, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.lookup(userID)
	if !ok {
		return nil, false
	}
	val, ok := s.TempData[key]
	return val, ok
}

// GetTempString retrieves a temporary value by key and asserts it as string.
func (m *memoryManager) GetTempString(userID int64, key string) (string, bool) {
	val, found := m.GetTemp(userID, key)
	if !found {
		return "", false
	}
	v, ok := val.(string)
	return v, ok
}

// GetTempInt64 retrieves a temporary value by key and asserts it as int64.
func (m *memoryManager) GetTempInt64(userID int64, key string) (int64, bool) {
	val, found := m.GetTemp(userID, key)
	if !found {
		return 0, false
	}
	v, ok := val.(int64)
	return v, ok
}

// ClearTemp removes a temporary key/value pair for the given user session.
func (m *memoryManager) ClearTemp(userID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.lookup(userID); ok {
		delete(s.TempData, key)
	}
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// SetState sets the FSM state for the given user.
func (m *memoryManager) SetState(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(userID).State = st
}

// GetState returns the current FSM state of a user, or StateIdle if none exists.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.lookup(userID); ok {
		return s.State
	}
	return StateIdle
}

// ClearState resets the FSM state to idle for a user without removing session data.
func (m *memoryManager) ClearState(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.lookup(userID); ok {
		s.State = StateIdle
		s.UpdatedAt = m.now()
	}
}

// HasState checks if a user has an active state other than idle.
func (m *memoryManager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// InProgress reports whether the user currently has an active FSM state.
func (m *memoryManager) InProgress(userID int64) bool {
	return m.HasState(userID)
}

// ManagerHandler executes the handler function registered for the user's current state, if any.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	return dispatch(m, c)
}

// Sweep drops every expired session and reports how many were removed.
func (m *MemoryManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (m *MemoryManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

var _ Manager = (*MemoryManager)(nil)
