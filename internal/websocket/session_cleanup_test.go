package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/adapters"
	"github.com/satriahrh/kuber/server/domain/entities"
)

type recordingDisconnector struct {
	mu           sync.Mutex
	disconnected []string
}

func (r *recordingDisconnector) Disconnect(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, sessionID)
	return true
}

func (r *recordingDisconnector) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.disconnected...)
}

func TestSessionCleanup_DisconnectsIdleSessions(t *testing.T) {
	ctx := context.Background()
	repo := adapters.NewMemorySessionRepository()
	now := time.Now()

	idle := entities.NewSession()
	idle.LastActiveAt = now.Add(-2 * time.Hour)
	active := entities.NewSession()
	closed := entities.NewSession()
	closed.LastActiveAt = now.Add(-2 * time.Hour)
	closed.Status = entities.SessionStatusClosed

	for _, s := range []*entities.Session{idle, active, closed} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}

	disconnector := &recordingDisconnector{}
	service := NewSessionCleanupService(repo, disconnector, 30*time.Minute, time.Minute, zap.NewNop())
	service.now = func() time.Time { return now }

	if n := service.runCleanup(); n != 1 {
		t.Errorf("Expected 1 disconnected session, got %d", n)
	}
	ids := disconnector.IDs()
	if len(ids) != 1 || ids[0] != idle.ID {
		t.Errorf("Expected only the idle session disconnected, got %v", ids)
	}
}

func TestSessionCleanup_DisabledWithoutTimeout(t *testing.T) {
	disconnector := &recordingDisconnector{}
	service := NewSessionCleanupService(adapters.NewMemorySessionRepository(), disconnector, 0, 0, zap.NewNop())

	if service.interval != time.Minute {
		t.Errorf("Expected default interval, got %v", service.interval)
	}

	service.Start()
	service.Stop()
	if len(disconnector.IDs()) != 0 {
		t.Error("Expected no disconnects")
	}
}
