package model

import (
	"time"

	"calendar-ai-billing/internal/domain"
)

// RefundRecord is the append-only trail of a money-back refund, one-to-one
// with the refund-triggering event, keyed by the provider refund id.
type RefundRecord struct {
	ID               string // internal ULID, sortable by creation
	ExternalRefundID string
	UserID           string
	SubscriptionID   string
	Reason           string
	ProcessedAt      time.Time
}

func NewRefundRecord(id, externalRefundID, userID, subscriptionID, reason string, now time.Time) (*RefundRecord, error) {
	if id == "" || externalRefundID == "" || userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &RefundRecord{
		ID:               id,
		ExternalRefundID: externalRefundID,
		UserID:           userID,
		SubscriptionID:   subscriptionID,
		Reason:           reason,
		ProcessedAt:      now,
	}, nil
}
