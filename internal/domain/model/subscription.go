package model

import (
	"time"

	"calendar-ai-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Subscription is the single per-user billing row. Every known user has
// exactly one; it is never deleted, canceled is terminal but the row stays
// for history. Version backs optimistic-concurrency updates: writers read,
// mutate a copy, and persist only if the stored version is unchanged.
type Subscription struct {
	UserID                 string
	PlanSlug               string
	Status                 SubscriptionStatus
	ExternalSubscriptionID *string // set once the provider creates it
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	RefundedAt             *time.Time
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewFreeSubscription builds the self-healing default row on the free plan.
func NewFreeSubscription(userID string, freePlan *Plan, now time.Time) (*Subscription, error) {
	if userID == "" || freePlan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		UserID:             userID,
		PlanSlug:           freePlan.Slug,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// NewPendingSubscription is the incomplete row created when a checkout
// session is issued; the checkout-completed event flips it.
func NewPendingSubscription(userID, planSlug string, now time.Time) (*Subscription, error) {
	if userID == "" || planSlug == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		UserID:             userID,
		PlanSlug:           planSlug,
		Status:             SubscriptionStatusIncomplete,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// MatchesExternalID reports whether an event referencing extID may be applied
// to this row. A row that has no external id yet matches anything (first
// checkout); once set, the ids must agree.
func (s *Subscription) MatchesExternalID(extID string) bool {
	if s.ExternalSubscriptionID == nil {
		return true
	}
	return *s.ExternalSubscriptionID == extID
}

// Rebindable reports whether a checkout may replace the stored external
// subscription id. Canceled and incomplete rows carry a stale or provisional
// id from an earlier cycle; a returning customer checks out under a fresh
// provider subscription that must be allowed to bind.
func (s *Subscription) Rebindable() bool {
	return s.Status == SubscriptionStatusCanceled || s.Status == SubscriptionStatusIncomplete
}
