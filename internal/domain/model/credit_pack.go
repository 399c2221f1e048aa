package model

import (
	"time"

	"calendar-ai-billing/internal/domain"
)

// CreditPackPurchase records a one-time credit grant. Rows are append-only,
// keyed by the provider payment id so a redelivered checkout event cannot
// grant twice.
type CreditPackPurchase struct {
	ExternalPaymentID string
	UserID            string
	CreditsGranted    int64
	PriceCents        int64
	PurchasedAt       time.Time
}

func NewCreditPackPurchase(externalPaymentID, userID string, credits, priceCents int64, now time.Time) (*CreditPackPurchase, error) {
	if externalPaymentID == "" || userID == "" || credits <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &CreditPackPurchase{
		ExternalPaymentID: externalPaymentID,
		UserID:            userID,
		CreditsGranted:    credits,
		PriceCents:        priceCents,
		PurchasedAt:       now,
	}, nil
}
