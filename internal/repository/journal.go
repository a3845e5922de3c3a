package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"pixelmint/internal/model"
)

// Journal syncs published credit events into the durable tables. The bus
// may redeliver, so the insert is idempotent on admission_id and the
// balance mirror is only advanced for events actually recorded.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// RecordCreditEvent writes the journal row and mirrors the resulting
// balance into the balances table, in one transaction.
func (j *Journal) RecordCreditEvent(ctx context.Context, event model.CreditEvent) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO credit_events (user_id, delta, balance_after, admission_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (admission_id) DO NOTHING`,
		event.UserID, event.Delta, event.BalanceAfter, event.AdmissionID, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert event: %w", err)
	}

	// Duplicate delivery: the first copy already advanced the mirror.
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balances (user_id, amount, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		WHERE balances.updated_at <= EXCLUDED.updated_at`,
		event.UserID, event.BalanceAfter, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: mirror balance: %w", err)
	}

	return tx.Commit(ctx)
}

// RecentEvents returns the latest journal rows for a user, newest first.
func (j *Journal) RecentEvents(ctx context.Context, userID string, limit int) ([]model.CreditEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.pool.Query(ctx, `
		SELECT user_id, delta, balance_after, admission_id, created_at
		FROM credit_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: recent events: %w", err)
	}
	defer rows.Close()

	var out []model.CreditEvent
	for rows.Next() {
		var ev model.CreditEvent
		if err := rows.Scan(&ev.UserID, &ev.Delta, &ev.BalanceAfter, &ev.AdmissionID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
