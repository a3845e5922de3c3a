package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelmint/internal/model"
)

// MemoryLimiter is a mutex-guarded in-process Limiter for tests and
// single-node development.
type MemoryLimiter struct {
	mu          sync.Mutex
	lastAllowed map[string]time.Time
	minInterval time.Duration
	now         func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(minInterval time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		lastAllowed: make(map[string]time.Time),
		minInterval: minInterval,
		now:         time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string, kind model.OperationKind) (Admission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := cooldownKey(userID, kind)
	now := l.now()
	if last, ok := l.lastAllowed[key]; ok && now.Sub(last) < l.minInterval {
		return Admission{}, ErrCoolingDown
	}
	l.lastAllowed[key] = now
	return Admission{ID: uuid.New().String()}, nil
}
