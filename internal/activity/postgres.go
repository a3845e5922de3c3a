package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pixelmint/internal/model"
)

// PostgresStore persists activity records in the activity_records table.
// tracking_ref is unique so a record can be queued at most once per ref,
// and the state guard in Update makes completion idempotent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Persist(ctx context.Context, rec *model.ActivityRecord) (int64, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO activity_records
			(owner_id, kind, state, tracking_ref, prompt, source_ref,
			 balance_before, balance_after, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, created_at`,
		rec.OwnerID, rec.Kind, rec.State, rec.TrackingRef, rec.Prompt,
		rec.SourceRef, rec.BalanceBefore, rec.BalanceAfter, rec.Reason,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("activity: persist: %w", err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) Update(ctx context.Context, trackingRef, newState, finalRef, reason string) (bool, error) {
	// The state guard in the WHERE clause is what makes duplicate
	// deliveries a no-op: a terminal row never matches.
	tag, err := s.pool.Exec(ctx, `
		UPDATE activity_records
		SET state = $2,
		    tracking_ref = CASE WHEN $3 <> '' THEN $3 ELSE tracking_ref END,
		    reason = $4,
		    updated_at = now()
		WHERE tracking_ref = $1 AND state = $5`,
		trackingRef, newState, finalRef, reason, model.StateQueued,
	)
	if err != nil {
		return false, fmt.Errorf("activity: update: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Nothing transitioned: distinguish terminal no-op from unknown ref.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activity_records WHERE tracking_ref = $1)`,
		trackingRef,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("activity: update lookup: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) FindByTrackingRef(ctx context.Context, trackingRef string) (model.ActivityRecord, error) {
	var rec model.ActivityRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, kind, state, tracking_ref, prompt, source_ref,
		       balance_before, balance_after, reason, created_at, updated_at
		FROM activity_records
		WHERE tracking_ref = $1`,
		trackingRef,
	).Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.State, &rec.TrackingRef,
		&rec.Prompt, &rec.SourceRef, &rec.BalanceBefore, &rec.BalanceAfter,
		&rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ActivityRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ActivityRecord{}, fmt.Errorf("activity: find: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string, filter model.ListFilter) ([]model.ActivityRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, owner_id, kind, state, tracking_ref, prompt, source_ref,
		       balance_before, balance_after, reason, created_at, updated_at
		FROM activity_records
		WHERE owner_id = $1`
	args := []any{ownerID}

	if filter.Kind != "" {
		query += ` AND kind = $2`
		args = append(args, filter.Kind)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("activity: list: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.State,
			&rec.TrackingRef, &rec.Prompt, &rec.SourceRef, &rec.BalanceBefore,
			&rec.BalanceAfter, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("activity: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
