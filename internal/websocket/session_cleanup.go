package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/repositories"
)

// Disconnector closes the connection of a live session
type Disconnector interface {
	Disconnect(sessionID string) bool
}

// SessionCleanupService disconnects realtime sessions that have been idle
// for longer than the idle timeout.
type SessionCleanupService struct {
	sessionRepo  repositories.SessionRepository
	disconnector Disconnector
	idleTimeout  time.Duration
	interval     time.Duration
	now          func() time.Time
	logger       *zap.Logger
	stopChan     chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(
	sessionRepo repositories.SessionRepository,
	disconnector Disconnector,
	idleTimeout time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Minute
		logger.Info("Using default session cleanup interval", zap.Duration("interval", interval))
	}
	return &SessionCleanupService{
		sessionRepo:  sessionRepo,
		disconnector: disconnector,
		idleTimeout:  idleTimeout,
		interval:     interval,
		now:          time.Now,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the background cleanup process. A zero idle timeout disables it.
func (s *SessionCleanupService) Start() {
	if s.idleTimeout <= 0 {
		s.logger.Info("Session cleanup disabled")
		return
	}
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("idleTimeout", s.idleTimeout),
		zap.Duration("interval", s.interval))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup disconnects idle sessions and returns how many were closed
func (s *SessionCleanupService) runCleanup() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions, err := s.sessionRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Error(err))
		return 0
	}

	cutoff := s.now().Add(-s.idleTimeout)
	closed := 0
	for _, session := range sessions {
		if session.IsClosed() || !session.LastActiveAt.Before(cutoff) {
			continue
		}
		if s.disconnector.Disconnect(session.ID) {
			closed++
			s.logger.Info("Disconnected idle session",
				zap.String("sessionID", session.ID),
				zap.Time("lastActiveAt", session.LastActiveAt))
		}
	}

	if closed > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("disconnected", closed))
	}
	return closed
}
