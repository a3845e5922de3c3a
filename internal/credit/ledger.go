// Package credit owns per-user credit balances. The only mutation paths are
// Reserve (atomic check-and-deduct) and Grant; nothing else writes a
// balance.
package credit

import (
	"context"
	"errors"
)

var (
	// ErrInsufficient is returned when a reservation would drive the
	// balance negative. The reserve is all-or-nothing: on this error the
	// balance is untouched.
	ErrInsufficient = errors.New("credit: insufficient balance")

	// ErrNotFound is returned by backends when an account row is expected
	// but missing.
	ErrNotFound = errors.New("credit: account not found")
)

// Ledger is the balance authority.
//
// Reserve must be atomic per account: read, verify balance >= cost, write
// balance-cost, with no interleaving writer. Under N concurrent
// reservations for one user exactly floor(balance/cost) may succeed.
type Ledger interface {
	// Balance returns the current balance, or the configured starting
	// balance if no account exists yet. It never creates an account.
	Balance(ctx context.Context, userID string) (int64, error)

	// Reserve atomically deducts cost. Accounts are created lazily with
	// the starting balance on first reservation. Returns the new balance
	// or ErrInsufficient with zero partial effect.
	Reserve(ctx context.Context, userID string, cost int64, admissionID string) (int64, error)

	// Grant transactionally adds amount (renewal, purchase, refund) and
	// returns the new balance.
	Grant(ctx context.Context, userID string, amount int64, admissionID string) (int64, error)
}
