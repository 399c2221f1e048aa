package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrVersionConflict    = errors.New("row version conflict")

	// Webhook ingestion errors
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrMalformedEvent   = errors.New("malformed provider event")
	ErrEventInFlight    = errors.New("event claimed but not yet applied")

	// Reconciliation errors
	ErrSubscriptionMismatch   = errors.New("event does not match stored subscription")
	ErrReconciliationConflict = errors.New("subscription update conflict not resolved")

	// Billing business errors
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrRefundWindowExpired  = errors.New("refund window has expired")
)

// IsRetryable reports whether the provider should redeliver. Transient store
// failures and in-flight duplicates resolve on a later attempt; everything
// else in the taxonomy is terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOperationFailed) ||
		errors.Is(err, ErrEventInFlight) ||
		errors.Is(err, ErrReconciliationConflict)
}
