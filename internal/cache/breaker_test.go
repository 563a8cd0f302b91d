package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, time.Minute)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errors.New("x") })
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Second)
	_ = cb.Call(ctx, func() error { return errors.New("y") })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreakerHalfOpenLimitsCalls(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	_ = cb.Call(context.Background(), func() error { return errors.New("x") })
	now = now.Add(2 * time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, cb.allowRequest())
	}
	assert.False(t, cb.allowRequest())
	assert.Equal(t, "half-open", cb.GetState().String())
}
