package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelmint/internal/model"
)

func TestMemoryLimiter_CooldownRejectsSecondRequest(t *testing.T) {
	l := NewMemoryLimiter(time.Minute)

	adm, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)
	assert.NotEmpty(t, adm.ID)

	_, err = l.Allow(context.Background(), "u1", model.KindImage)
	assert.ErrorIs(t, err, ErrCoolingDown)
}

func TestMemoryLimiter_KindsAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(time.Minute)

	_, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)

	// A video request from the same user is a different cooldown key.
	_, err = l.Allow(context.Background(), "u1", model.KindVideo)
	assert.NoError(t, err)
}

func TestMemoryLimiter_UsersAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(time.Minute)

	_, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "u2", model.KindImage)
	assert.NoError(t, err)
}

func TestMemoryLimiter_AllowsAfterInterval(t *testing.T) {
	l := NewMemoryLimiter(time.Minute)
	base := time.Now()
	l.now = func() time.Time { return base }

	_, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)

	l.now = func() time.Time { return base.Add(59 * time.Second) }
	_, err = l.Allow(context.Background(), "u1", model.KindImage)
	assert.ErrorIs(t, err, ErrCoolingDown)

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	_, err = l.Allow(context.Background(), "u1", model.KindImage)
	assert.NoError(t, err)
}

func TestMemoryLimiter_AdmissionIDsUnique(t *testing.T) {
	l := NewMemoryLimiter(time.Nanosecond)

	a, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)
	time.Sleep(time.Microsecond)
	b, err := l.Allow(context.Background(), "u1", model.KindImage)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}
