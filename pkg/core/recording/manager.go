package recording

import (
	"context"
	"log/slog"
	"sync"

	"github.com/memorylane-ai/memorylane/pkg/core"
	"github.com/memorylane-ai/memorylane/pkg/core/audio"
	"github.com/memorylane-ai/memorylane/pkg/core/memories"
)

// EngineFactory builds a fresh audio engine for each session.
type EngineFactory func() *audio.Engine

// Manager tracks at most one active recording session per owner.
type Manager struct {
	mu     sync.Mutex
	active map[string]*Session

	newEngine   EngineFactory
	persistence memories.Persistence
	logger      *slog.Logger
}

// NewManager creates a session manager.
func NewManager(newEngine EngineFactory, persistence memories.Persistence, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active:      make(map[string]*Session),
		newEngine:   newEngine,
		persistence: persistence,
		logger:      logger,
	}
}

// Start begins a new session for the owner. If one is already active it
// is stopped first, then the new session starts.
func (m *Manager) Start(ctx context.Context, ownerID string, mode Mode, opts audio.StartOptions) (*Session, error) {
	m.mu.Lock()
	old := m.active[ownerID]
	delete(m.active, ownerID)
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("stopping previous session before starting new one",
			"owner_id", ownerID, "old_session_id", old.ID)
		if _, err := old.Stop(ctx); err != nil {
			m.logger.Warn("previous session stop failed", "session_id", old.ID, "error", err)
		}
	}

	session := NewSession(ownerID, mode, m.newEngine(), m.persistence, m.logger)
	if err := session.Start(ctx, opts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active[ownerID] = session
	m.mu.Unlock()
	return session, nil
}

// Active returns the owner's active session, if any.
func (m *Manager) Active(ownerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[ownerID]
	return s, ok
}

// Stop finalizes the owner's active session and removes it from the
// active set. The session stays retrievable through its own handle.
func (m *Manager) Stop(ctx context.Context, ownerID string) (*memories.RecordingMetadata, error) {
	m.mu.Lock()
	session, ok := m.active[ownerID]
	delete(m.active, ownerID)
	m.mu.Unlock()

	if !ok {
		return nil, core.NewNotFoundError("no active session for owner")
	}
	return session.Stop(ctx)
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
