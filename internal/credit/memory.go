package credit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pixelmint/internal/bus"
	"pixelmint/internal/model"
)

// MemoryLedger is a mutex-guarded in-process Ledger. It backs tests and
// single-node development; production uses the Redis ledger.
type MemoryLedger struct {
	mu              sync.Mutex
	balances        map[string]int64
	startingBalance int64
	bus             bus.Bus
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(startingBalance int64, b bus.Bus) *MemoryLedger {
	if b == nil {
		b = bus.Noop{}
	}
	return &MemoryLedger{
		balances:        make(map[string]int64),
		startingBalance: startingBalance,
		bus:             b,
	}
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bal, ok := l.balances[userID]; ok {
		return bal, nil
	}
	return l.startingBalance, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, userID string, cost int64, admissionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		// Lazy account creation on first reservation.
		bal = l.startingBalance
	}
	if bal < cost {
		return 0, ErrInsufficient
	}
	bal -= cost
	l.balances[userID] = bal

	l.publish(userID, -cost, bal, admissionID)
	return bal, nil
}

func (l *MemoryLedger) Grant(_ context.Context, userID string, amount int64, admissionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[userID]
	if !ok {
		bal = l.startingBalance
	}
	bal += amount
	l.balances[userID] = bal

	l.publish(userID, amount, bal, admissionID)
	return bal, nil
}

func (l *MemoryLedger) publish(userID string, delta, balanceAfter int64, admissionID string) {
	event := model.CreditEvent{
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		AdmissionID:  admissionID,
		CreatedAt:    time.Now().UTC(),
	}
	data, _ := json.Marshal(event)
	_ = l.bus.Publish(bus.TopicCreditEvents, data)
}
