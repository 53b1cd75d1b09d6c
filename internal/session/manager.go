// Package session provides an in-memory registry of logical Codex
// sessions: the mapping from human-friendly labels to server-assigned
// session ids, worktree branches, and workspace paths, plus focus order
// for consumers that present sessions side by side.
package session

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Model represents one logical Codex session.
type Model struct {
	// Name is the human-friendly label (e.g. "session-1").
	Name string

	// SessionID is the server-assigned Codex session id; empty until the
	// session_configured notification binds it.
	SessionID string

	// BranchName and WorkspacePath describe this session's git worktree.
	BranchName    string
	WorkspacePath string
}

// Manager tracks sessions, their creation order, and the focused session.
// Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	byName  map[string]*Model
	order   []string
	focused string
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]*Model, 4)}
}

// NewLabel generates a unique session label.
func NewLabel() string {
	return "session-" + ulid.Make().String()
}

// Create registers a new session under name. If name is empty a unique
// label is generated. The first session created becomes focused.
func (m *Manager) Create(name string) *Model {
	if name == "" {
		name = NewLabel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[name]; ok {
		return existing
	}

	model := &Model{Name: name}
	m.byName[name] = model
	m.order = append(m.order, name)

	if m.focused == "" {
		m.focused = name
	}

	return model
}

// Close removes a session. Focus moves to the oldest remaining session.
func (m *Manager) Close(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.byName, name)

	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)

			break
		}
	}

	if m.focused == name {
		if len(m.order) > 0 {
			m.focused = m.order[0]
		} else {
			m.focused = ""
		}
	}
}

// Get returns the session with the given label.
func (m *Manager) Get(name string) (*Model, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, ok := m.byName[name]

	return model, ok
}

// All returns the sessions in creation order.
func (m *Manager) All() []*Model {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Model, 0, len(m.order))
	for _, name := range m.order {
		sessions = append(sessions, m.byName[name])
	}

	return sessions
}

// Focus sets the focused session if it exists.
func (m *Manager) Focus(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; ok {
		m.focused = name
	}
}

// FocusByIndex focuses the i-th session in creation order.
func (m *Manager) FocusByIndex(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i >= 0 && i < len(m.order) {
		m.focused = m.order[i]
	}
}

// CycleFocus moves focus to the next (or previous) session, wrapping.
func (m *Manager) CycleFocus(forward bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 || m.focused == "" {
		return
	}

	current := 0

	for i, name := range m.order {
		if name == m.focused {
			current = i

			break
		}
	}

	if forward {
		m.focused = m.order[(current+1)%len(m.order)]
	} else {
		m.focused = m.order[(current-1+len(m.order))%len(m.order)]
	}
}

// Focused returns the focused session, or nil.
func (m *Manager) Focused() *Model {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.focused == "" {
		return nil
	}

	return m.byName[m.focused]
}

// BindSessionID records the server-assigned Codex session id for a session.
// First write wins, matching the timeline binding rule.
func (m *Manager) BindSessionID(name, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if model, ok := m.byName[name]; ok && model.SessionID == "" {
		model.SessionID = sessionID
	}
}

// FindBySessionID returns the session bound to a Codex session id.
func (m *Manager) FindBySessionID(sessionID string) (*Model, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range m.order {
		if model := m.byName[name]; model.SessionID == sessionID {
			return model, true
		}
	}

	return nil, false
}
