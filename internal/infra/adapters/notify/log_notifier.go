package notify

import (
	"context"

	"github.com/rs/zerolog"

	"calendar-ai-billing/internal/domain/ports/adapter"
)

var _ adapter.DunningNotifier = (*LogDunningNotifier)(nil)

// LogDunningNotifier records the dunning trigger and nothing else; the actual
// email/notification pipeline is owned by another service that tails these
// events.
type LogDunningNotifier struct {
	log *zerolog.Logger
}

func NewLogDunningNotifier(logger *zerolog.Logger) *LogDunningNotifier {
	nl := logger.With().Str("component", "DunningNotifier").Logger()
	return &LogDunningNotifier{log: &nl}
}

func (n *LogDunningNotifier) NotifyPaymentFailed(ctx context.Context, userID string) error {
	n.log.Warn().Str("user_id", userID).Msg("payment failed, dunning notification requested")
	return nil
}
