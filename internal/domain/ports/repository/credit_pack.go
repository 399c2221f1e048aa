package repository

import (
	"context"

	"calendar-ai-billing/internal/domain/model"
)

// CreditPackRepository is append-only: Insert is idempotent on the external
// payment id and reports whether this call actually granted.
type CreditPackRepository interface {
	// Insert returns (false, nil) when the payment id was already recorded.
	Insert(ctx context.Context, tx Tx, p *model.CreditPackPurchase) (granted bool, err error)
	TotalCreditsGranted(ctx context.Context, tx Tx, userID string) (int64, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.CreditPackPurchase, error)
}
