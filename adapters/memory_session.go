package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/domain/repositories"
)

// MemorySessionRepository keeps snapshots of live sessions in memory. Stored
// and returned sessions are copies, so callers never share state with it.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
}

// Ensure MemorySessionRepository implements the SessionRepository interface
var _ repositories.SessionRepository = (*MemorySessionRepository)(nil)

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

// Create implements SessionRepository interface
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this id already exists")
	}

	m.sessions[session.ID] = session.Snapshot()
	return nil
}

// GetByID implements SessionRepository interface
func (m *MemorySessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, repositories.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Update implements SessionRepository interface
func (m *MemorySessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; !exists {
		return repositories.ErrSessionNotFound
	}

	m.sessions[session.ID] = session.Snapshot()
	return nil
}

// Delete implements SessionRepository interface
func (m *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return repositories.ErrSessionNotFound
	}

	delete(m.sessions, id)
	return nil
}

// List returns all live sessions, oldest first
func (m *MemorySessionRepository) List(ctx context.Context) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*entities.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session.Snapshot())
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}
