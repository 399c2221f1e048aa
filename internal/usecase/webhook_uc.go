package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
	"calendar-ai-billing/internal/infra/logging"
	"calendar-ai-billing/internal/infra/metrics"
)

// SignatureVerifier authenticates a raw webhook body against its header.
type SignatureVerifier interface {
	Verify(body []byte, signature string) error
}

// WebhookResult is the ingestion answer for an accepted delivery. Duplicate
// deliveries carry the previously recorded outcome.
type WebhookResult struct {
	EventID   string
	EventType model.EventType
	Outcome   model.EventOutcome
	Duplicate bool
}

// WebhookUseCase is the ingestion gateway: verify, parse, claim, dispatch,
// mark. A non-nil error means the delivery was not resolved; callers decide
// transport semantics with domain.IsRetryable.
type WebhookUseCase interface {
	Ingest(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

var _ WebhookUseCase = (*webhookUC)(nil)

type webhookUC struct {
	verifier   SignatureVerifier
	ledger     repository.EventLedgerRepository
	reconciler ReconcileUseCase
	refunds    RefundUseCase
	log        *zerolog.Logger
	now        func() time.Time
}

func NewWebhookUseCase(
	verifier SignatureVerifier,
	ledger repository.EventLedgerRepository,
	reconciler ReconcileUseCase,
	refunds RefundUseCase,
	logger *zerolog.Logger,
) WebhookUseCase {
	return &webhookUC{
		verifier:   verifier,
		ledger:     ledger,
		reconciler: reconciler,
		refunds:    refunds,
		log:        logger,
		now:        time.Now,
	}
}

func (w *webhookUC) Ingest(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	defer logging.TraceDuration(w.log, "WebhookUC.Ingest")()
	start := w.now()
	defer func() {
		metrics.ObserveWebhookLatency(float64(time.Since(start).Milliseconds()))
	}()

	// the ledger is never touched before the signature passes
	if err := w.verifier.Verify(payload, signature); err != nil {
		metrics.IncWebhookRejection("signature")
		return nil, err
	}
	ev, err := model.ParseProviderEvent(payload)
	if err != nil {
		metrics.IncWebhookRejection("malformed")
		return nil, err
	}

	ctx = logging.WithEventID(ctx, ev.ID)
	log := logging.With(ctx, w.log)

	claim, err := w.ledger.TryClaim(ctx, repository.NoTX, &model.ProcessedEvent{
		EventID:    ev.ID,
		EventType:  ev.Type,
		ReceivedAt: start,
	})
	if err != nil {
		return nil, err
	}
	if !claim.Claimed {
		if claim.PriorOutcome == model.OutcomePending {
			// another delivery of this event is mid-flight; ask for redelivery
			return nil, domain.ErrEventInFlight
		}
		metrics.IncWebhookDuplicate()
		log.Debug().Str("event_type", string(ev.Type)).Msg("duplicate delivery resolved from ledger")
		return &WebhookResult{
			EventID:   ev.ID,
			EventType: ev.Type,
			Outcome:   claim.PriorOutcome,
			Duplicate: true,
		}, nil
	}

	var outcome model.EventOutcome
	if ev.Refund != nil {
		outcome, err = w.refunds.ApplyRefundEvent(ctx, ev.Refund)
	} else {
		outcome, err = w.reconciler.Apply(ctx, ev)
	}
	if err != nil {
		// claim stays unmarked so redelivery (or the sweeper) can retry
		log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event dispatch unresolved")
		return nil, err
	}

	if err := w.ledger.MarkOutcome(ctx, repository.NoTX, ev.ID, outcome); err != nil {
		return nil, err
	}
	metrics.IncWebhookEvent(string(ev.Type), string(outcome))
	log.Info().Str("event_type", string(ev.Type)).Str("outcome", string(outcome)).Msg("event processed")
	return &WebhookResult{EventID: ev.ID, EventType: ev.Type, Outcome: outcome}, nil
}
