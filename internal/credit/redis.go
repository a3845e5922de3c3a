package credit

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"pixelmint/internal/bus"
	"pixelmint/internal/model"
)

//go:embed reserve.lua
var reserveLuaScript string

// RedisLedger keeps live balances in Redis and deducts via a Lua script so
// the read-check-write is a single atomic step. Postgres is the durable
// source used to warm the cache; the journal worker keeps it in sync from
// published credit events.
type RedisLedger struct {
	redisClient     *redis.Client
	dbPool          *pgxpool.Pool
	bus             bus.Bus
	startingBalance int64
}

var _ Ledger = (*RedisLedger)(nil)

// errCacheMiss is internal: the Lua script found no cached balance.
var errCacheMiss = errors.New("credit: balance not in cache")

func NewRedisLedger(rdb *redis.Client, db *pgxpool.Pool, b bus.Bus, startingBalance int64) *RedisLedger {
	if b == nil {
		b = bus.Noop{}
	}
	return &RedisLedger{
		redisClient:     rdb,
		dbPool:          db,
		bus:             b,
		startingBalance: startingBalance,
	}
}

func balanceKey(userID string) string {
	return fmt.Sprintf("balance:%s", userID)
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	val, err := l.redisClient.Get(ctx, balanceKey(userID)).Int64()
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("credit: read balance: %w", err)
	}

	// Cache miss. Read the durable row without creating anything: callers
	// without an account see the starting balance.
	var bal int64
	err = l.dbPool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE user_id = $1`, userID,
	).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return l.startingBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("credit: read balance row: %w", err)
	}
	return bal, nil
}

func (l *RedisLedger) Reserve(ctx context.Context, userID string, cost int64, admissionID string) (int64, error) {
	newBal, err := l.runReserve(ctx, userID, cost)
	if errors.Is(err, errCacheMiss) {
		slog.Info("credit: cold start, warming balance cache", "user_id", userID)
		if err := l.warmUpCache(ctx, userID); err != nil {
			return 0, err
		}
		newBal, err = l.runReserve(ctx, userID, cost)
	}
	if err != nil {
		return 0, err
	}

	l.publish(userID, -cost, newBal, admissionID)
	return newBal, nil
}

func (l *RedisLedger) Grant(ctx context.Context, userID string, amount int64, admissionID string) (int64, error) {
	// Warm up first so the INCRBY applies on top of the real balance, not
	// an implicit zero.
	if err := l.warmUpCache(ctx, userID); err != nil {
		return 0, err
	}

	newBal, err := l.redisClient.IncrBy(ctx, balanceKey(userID), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("credit: grant: %w", err)
	}

	l.publish(userID, amount, newBal, admissionID)
	return newBal, nil
}

// runReserve executes the Lua deduction once.
func (l *RedisLedger) runReserve(ctx context.Context, userID string, cost int64) (int64, error) {
	result, err := l.redisClient.Eval(ctx, reserveLuaScript,
		[]string{balanceKey(userID)}, cost,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("credit: reserve script: %w", err)
	}

	resArray, ok := result.([]interface{})
	if !ok || len(resArray) < 1 {
		return 0, errors.New("credit: unexpected reserve script response")
	}

	status := resArray[0].(int64)
	switch status {
	case 1:
		return resArray[1].(int64), nil
	case -1:
		return 0, errCacheMiss
	case -2:
		return 0, ErrInsufficient
	default:
		return 0, fmt.Errorf("credit: unknown reserve status %d", status)
	}
}

// warmUpCache loads the durable balance into Redis, creating the account
// row with the starting balance if this is the user's first reservation.
// SETNX so a deduction racing the warm-up is never overwritten.
func (l *RedisLedger) warmUpCache(ctx context.Context, userID string) error {
	var bal int64
	err := l.dbPool.QueryRow(ctx, `
		INSERT INTO balances (user_id, amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING amount`,
		userID, l.startingBalance,
	).Scan(&bal)
	if err != nil {
		return fmt.Errorf("credit: warm up balance: %w", err)
	}

	if err := l.redisClient.SetNX(ctx, balanceKey(userID), bal, 0).Err(); err != nil {
		return fmt.Errorf("credit: cache balance: %w", err)
	}
	return nil
}

func (l *RedisLedger) publish(userID string, delta, balanceAfter int64, admissionID string) {
	event := model.CreditEvent{
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		AdmissionID:  admissionID,
		CreatedAt:    time.Now().UTC(),
	}
	data, _ := json.Marshal(event)
	if err := l.bus.Publish(bus.TopicCreditEvents, data); err != nil {
		slog.Error("credit: publish event failed", "user_id", userID, "error", err)
	}
}
