package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/kuber/server/domain/entities"
)

// ErrSessionNotFound is returned when no live session has the given id
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository tracks the live realtime sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*entities.Session, error)
}
