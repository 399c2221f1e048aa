package repository

import (
	"context"

	"calendar-ai-billing/internal/domain/model"
)

// RefundRepository records money-back refunds, append-only and idempotent on
// the external refund id.
type RefundRepository interface {
	// Insert returns (false, nil) when the refund id was already recorded.
	Insert(ctx context.Context, tx Tx, r *model.RefundRecord) (inserted bool, err error)
	FindByExternalID(ctx context.Context, tx Tx, externalRefundID string) (*model.RefundRecord, error)
}
