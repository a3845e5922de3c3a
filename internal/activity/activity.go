// Package activity persists one record per admitted generation request and
// serves owner-facing listings plus completion matching by tracking ref.
package activity

import (
	"context"
	"errors"

	"pixelmint/internal/model"
)

// ErrNotFound is returned when no record matches a tracking ref.
var ErrNotFound = errors.New("activity: record not found")

// DefaultListLimit caps listings when the caller does not page explicitly.
const DefaultListLimit = 50

// Store is the activity persistence boundary.
//
// Update is idempotent: a record already in a terminal state is never
// re-transitioned, so duplicate completion deliveries are harmless.
type Store interface {
	// Persist writes a new record and returns its assigned id.
	Persist(ctx context.Context, rec *model.ActivityRecord) (int64, error)

	// Update transitions the record matching trackingRef to newState and
	// swaps trackingRef for finalRef when one is given. Returns true only
	// when a queued record actually transitioned; false when the record
	// was already terminal. ErrNotFound when no record matches.
	Update(ctx context.Context, trackingRef, newState, finalRef, reason string) (bool, error)

	// FindByTrackingRef returns the record for a correlation id.
	FindByTrackingRef(ctx context.Context, trackingRef string) (model.ActivityRecord, error)

	// List returns the owner's records newest-first.
	List(ctx context.Context, ownerID string, filter model.ListFilter) ([]model.ActivityRecord, error)
}
