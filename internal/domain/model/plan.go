package model

import (
	"calendar-ai-billing/internal/domain"
)

type BillingInterval string

const (
	IntervalMonth   BillingInterval = "month"
	IntervalYear    BillingInterval = "year"
	IntervalOneTime BillingInterval = "one_time"
)

// Plan is a purchasable tier: fixed price, feature set, and monthly credit
// allotment. Plans are immutable once a subscription references them; a price
// change means a new slug.
type Plan struct {
	Slug            string
	Name            string
	PriceCents      int64
	Interval        BillingInterval
	CreditAllotment *int64 // nil means unlimited
	Features        []string
	IsFree          bool
	TrialDays       int
	DisplayOrder    int
}

func (p *Plan) IsZero() bool { return p == nil || p.Slug == "" }

func (p *Plan) HasFeature(tag string) bool {
	for _, f := range p.Features {
		if f == tag {
			return true
		}
	}
	return false
}

// NewPlan validates and constructs a plan.
func NewPlan(slug, name string, priceCents int64, interval BillingInterval, features []string) (*Plan, error) {
	if slug == "" || name == "" || priceCents < 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch interval {
	case IntervalMonth, IntervalYear, IntervalOneTime:
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		Slug:       slug,
		Name:       name,
		PriceCents: priceCents,
		Interval:   interval,
		Features:   features,
		IsFree:     priceCents == 0,
	}, nil
}
