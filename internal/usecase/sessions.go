package usecase

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/logging"
)

// SessionFactory builds a fresh, empty session.
type SessionFactory func() (*Session, error)

// SessionManager keeps independent sessions keyed by ID.
type SessionManager struct {
	factory SessionFactory
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(factory SessionFactory, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		factory:  factory,
		logger:   logging.OrDiscard(logger),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *SessionManager) Create() (*Session, error) {
	s, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("created session", "session", s.ID(), "active", n)
	return s, nil
}

// Get returns a live session.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// List returns the live sessions, oldest first.
func (m *SessionManager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Destroy removes a session and releases its corpus.
func (m *SessionManager) Destroy(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	s.Destroy()
	return nil
}

// Close destroys every session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Destroy()
	}
}
