package repositories

import (
	"context"

	"github.com/satriahrh/kuber/server/domain/entities"
)

// TurnPublisher emits a record of every completed conversation turn
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event entities.TurnEvent) error
}
