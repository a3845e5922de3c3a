package service

import (
	"context"

	"pixelmint/internal/model"
)

// GenerationService defines the business operations around admission,
// completion and credit. All transport layers (HTTP, NATS) and the journal
// worker depend on this interface, not on the concrete dispatcher.
type GenerationService interface {
	// Generate runs the full admission pipeline for one request and
	// returns a terminal result. The returned error is reserved for
	// infrastructure failures; business rejections (auth, rate limit,
	// credits, provider) come back inside the result.
	Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error)

	// Complete applies a provider completion callback. Unknown tracking
	// refs are logged and dropped; already-terminal records are a no-op.
	Complete(ctx context.Context, notice model.CompletionNotice) error

	// ListActivity returns the owner's records newest-first.
	ListActivity(ctx context.Context, ownerID string, filter model.ListFilter) ([]model.ActivityRecord, error)

	// Balance returns the caller's current credit balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Grant adds credits out of band (renewal, purchase, refund).
	Grant(ctx context.Context, userID string, amount int64) (int64, error)

	// SyncCreditEvent journals a published credit event. Idempotent on
	// the event's admission id.
	SyncCreditEvent(ctx context.Context, event model.CreditEvent) error
}
