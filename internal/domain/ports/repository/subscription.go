package repository

import (
	"context"

	"calendar-ai-billing/internal/domain/model"
)

// SubscriptionRepository persists the one-row-per-user subscription store.
type SubscriptionRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	FindByExternalID(ctx context.Context, tx Tx, externalSubscriptionID string) (*model.Subscription, error)
	// Insert creates the row; the user_id primary key makes a second insert
	// fail with ErrAlreadyExists (concurrent self-heal loses cleanly).
	Insert(ctx context.Context, tx Tx, s *model.Subscription) error
	// Update persists s only if the stored version still equals s.Version,
	// bumping the version on success. A lost race returns ErrVersionConflict.
	Update(ctx context.Context, tx Tx, s *model.Subscription) error
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
