package treasure

import (
	"errors"
	"sync"
)

// ErrNoSession is returned when a workflow call arrives with no active
// authoring session.
var ErrNoSession = errors.New("no active authoring session")

// Manager owns the single active authoring session. The camera stream is a
// shared resource, so starting a new session ends any session still holding
// it.
type Manager struct {
	mu           sync.Mutex
	active       *Session
	defaultQuota int
	minScore     int
}

func NewManager(defaultQuota, minScore int) *Manager {
	return &Manager{defaultQuota: defaultQuota, minScore: minScore}
}

// Start creates a new session, ending and discarding any previous one. A
// quota of zero uses the configured default.
func (m *Manager) Start(quota int) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.End()
	}
	if quota <= 0 {
		quota = m.defaultQuota
	}
	m.active = NewSession(quota, m.minScore)
	return m.active
}

// Active returns the current session, or ErrNoSession if none was started.
func (m *Manager) Active() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoSession
	}
	return m.active, nil
}

// End terminates and releases the active session, if any.
func (m *Manager) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.End()
		m.active = nil
	}
}
