// Package ratelimit owns the short-lived per-(user, kind) cooldown state.
// The limiter is advisory abuse protection: it runs before any ledger
// interaction and is never part of balance correctness.
package ratelimit

import (
	"context"
	"errors"

	"pixelmint/internal/model"
)

// ErrCoolingDown is returned when a same-kind request arrives before the
// configured minimum interval has elapsed.
var ErrCoolingDown = errors.New("ratelimit: cooling down")

// Admission is a successful rate-limit check. ID correlates the admission
// through the credit journal.
type Admission struct {
	ID string
}

// Limiter admits or rejects a request. Kinds are independent: a user may
// have an image and a video request in flight simultaneously.
type Limiter interface {
	Allow(ctx context.Context, userID string, kind model.OperationKind) (Admission, error)
}

func cooldownKey(userID string, kind model.OperationKind) string {
	return "cooldown:" + userID + ":" + string(kind)
}
