package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/adapter"
	"calendar-ai-billing/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memPlanRepo is a small in-memory plan catalog used by unit tests.
type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan
}

func newMemPlanRepo(plans ...*model.Plan) *memPlanRepo {
	m := &memPlanRepo{store: make(map[string]*model.Plan)}
	for _, p := range plans {
		cp := *p
		m.store[p.Slug] = &cp
	}
	return m
}

func (m *memPlanRepo) FindBySlug(ctx context.Context, _ repository.Tx, slug string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[slug]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Plan, 0, len(m.store))
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (m *memPlanRepo) Save(ctx context.Context, _ repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.store[plan.Slug] = &cp
	return nil
}

// memSubRepo implements the optimistic-concurrency contract faithfully so
// version-conflict paths are exercised for real.
type memSubRepo struct {
	mu        sync.Mutex
	store     map[string]*model.Subscription
	updateErr error // simulate store failures
	conflicts int   // force the next N updates to lose the race
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{store: make(map[string]*model.Subscription)}
}

func (m *memSubRepo) FindByUser(ctx context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) FindByExternalID(ctx context.Context, _ repository.Tx, extID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.ExternalSubscriptionID != nil && *s.ExternalSubscriptionID == extID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) Insert(ctx context.Context, _ repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[s.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	s.Version = 1
	cp := *s
	m.store[s.UserID] = &cp
	return nil
}

func (m *memSubRepo) Update(ctx context.Context, _ repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		return domain.ErrVersionConflict
	}
	cur, ok := m.store[s.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != s.Version {
		return domain.ErrVersionConflict
	}
	s.Version++
	cp := *s
	m.store[s.UserID] = &cp
	return nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context, _ repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.store {
		out[s.Status]++
	}
	return out, nil
}

// snapshot returns a copy of the stored row for assertions.
func (m *memSubRepo) snapshot(userID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[userID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *memSubRepo) put(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Version == 0 {
		s.Version = 1
	}
	cp := *s
	m.store[s.UserID] = &cp
}

// memLedgerRepo is an in-memory idempotency ledger.
type memLedgerRepo struct {
	mu       sync.Mutex
	store    map[string]*model.ProcessedEvent
	claimErr error
	markErr  error
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{store: make(map[string]*model.ProcessedEvent)}
}

func (m *memLedgerRepo) TryClaim(ctx context.Context, _ repository.Tx, ev *model.ProcessedEvent) (repository.ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return repository.ClaimResult{}, m.claimErr
	}
	if cur, ok := m.store[ev.EventID]; ok {
		return repository.ClaimResult{Claimed: false, PriorOutcome: cur.Outcome}, nil
	}
	cp := *ev
	cp.Outcome = model.OutcomePending
	m.store[ev.EventID] = &cp
	return repository.ClaimResult{Claimed: true}, nil
}

func (m *memLedgerRepo) MarkOutcome(ctx context.Context, _ repository.Tx, eventID string, outcome model.EventOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	cur, ok := m.store[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	cur.Outcome = outcome
	cur.AppliedAt = &now
	return nil
}

func (m *memLedgerRepo) ListStaleClaims(ctx context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProcessedEvent
	for _, ev := range m.store {
		if ev.Outcome == model.OutcomePending && ev.ReceivedAt.Before(cutoff) {
			cp := *ev
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memLedgerRepo) Release(ctx context.Context, _ repository.Tx, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.store[eventID]; ok && cur.Outcome == model.OutcomePending {
		delete(m.store, eventID)
	}
	return nil
}

// memCreditRepo is the append-only credit pack store.
type memCreditRepo struct {
	mu    sync.Mutex
	store map[string]*model.CreditPackPurchase
}

func newMemCreditRepo() *memCreditRepo {
	return &memCreditRepo{store: make(map[string]*model.CreditPackPurchase)}
}

func (m *memCreditRepo) Insert(ctx context.Context, _ repository.Tx, p *model.CreditPackPurchase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ExternalPaymentID]; ok {
		return false, nil
	}
	cp := *p
	m.store[p.ExternalPaymentID] = &cp
	return true, nil
}

func (m *memCreditRepo) TotalCreditsGranted(ctx context.Context, _ repository.Tx, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.store {
		if p.UserID == userID {
			total += p.CreditsGranted
		}
	}
	return total, nil
}

func (m *memCreditRepo) ListByUser(ctx context.Context, _ repository.Tx, userID string) ([]*model.CreditPackPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CreditPackPurchase
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memRefundRepo is the append-only refund store.
type memRefundRepo struct {
	mu    sync.Mutex
	store map[string]*model.RefundRecord
}

func newMemRefundRepo() *memRefundRepo {
	return &memRefundRepo{store: make(map[string]*model.RefundRecord)}
}

func (m *memRefundRepo) Insert(ctx context.Context, _ repository.Tx, r *model.RefundRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[r.ExternalRefundID]; ok {
		return false, nil
	}
	cp := *r
	m.store[r.ExternalRefundID] = &cp
	return true, nil
}

func (m *memRefundRepo) FindByExternalID(ctx context.Context, _ repository.Tx, extID string) (*model.RefundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[extID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// passthroughTxManager runs fn without a real transaction.
type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// mockGateway records provider calls and returns canned results.
type mockGateway struct {
	mu            sync.Mutex
	checkoutCalls []adapter.CheckoutParams
	cancelCalls   []string
	refundCalls   []string
	checkoutErr   error
	refundID      string
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutParams) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return "", "", g.checkoutErr
	}
	g.checkoutCalls = append(g.checkoutCalls, p)
	return "cs_test", "https://example.test/checkout/cs_test", nil
}

func (g *mockGateway) CreatePortalSession(ctx context.Context, extID string) (string, error) {
	return "https://example.test/portal/" + extID, nil
}

func (g *mockGateway) CancelSubscription(ctx context.Context, extID string, atPeriodEnd bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, extID)
	return nil
}

func (g *mockGateway) RefundPayment(ctx context.Context, extPaymentID, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls = append(g.refundCalls, extPaymentID)
	if g.refundID != "" {
		return g.refundID, nil
	}
	return "re_test", nil
}

// mockNotifier records dunning triggers.
type mockNotifier struct {
	mu      sync.Mutex
	userIDs []string
}

func (n *mockNotifier) NotifyPaymentFailed(ctx context.Context, userID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.userIDs = append(n.userIDs, userID)
	return nil
}
