package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(DefaultConfig(), WithClock(clock.Now), WithSleep(clock.Sleep)), clock
}

// --- Delay Tests ---

func TestWaitDelays(t *testing.T) {
	l, clock := newTestLimiter()
	s := l.BeginExecution()
	ctx := context.Background()

	require.NoError(t, s.Wait(ctx, "getEntityDetails", false))
	assert.Empty(t, clock.sleeps, "first call never waits")

	require.NoError(t, s.Wait(ctx, "updateDealStage", false))
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clock.sleeps)

	require.NoError(t, s.Wait(ctx, "sendMessage", false))
	assert.Equal(t, 1000*time.Millisecond, clock.sleeps[1], "built-in heavy set")

	require.NoError(t, s.Wait(ctx, "customBulk", true))
	assert.Equal(t, 1000*time.Millisecond, clock.sleeps[2], "declared heavy")

	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, s.Wait(ctx, "archiveChat", false))
	assert.Len(t, clock.sleeps, 3, "enough time has passed")

	assert.Equal(t, 5, s.Calls())
}

func TestIsHeavy(t *testing.T) {
	assert.True(t, IsHeavy("sendMessage"))
	assert.True(t, IsHeavy("batchDismissTasks"))
	assert.False(t, IsHeavy("listChats"))
}

// --- Ceiling Tests ---

func TestExecutionCeiling(t *testing.T) {
	l, _ := newTestLimiter()
	s := l.BeginExecution()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Wait(ctx, "pinChat", false))
	}

	err := s.Wait(ctx, "pinChat", false)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, ReasonExecution, rej.Reason)
	assert.Equal(t, "Rate limit: Maximum 20 API calls per request reached. Please be more specific or break your request into smaller parts.", err.Error())
	assert.Equal(t, 20, s.Calls(), "rejected call is not recorded")

	// a new execution gets a fresh budget
	require.NoError(t, l.BeginExecution().Wait(ctx, "pinChat", false))
}

func TestWindowCeiling(t *testing.T) {
	l, clock := newTestLimiter()
	ctx := context.Background()

	first := l.BeginExecution()
	for i := 0; i < 20; i++ {
		require.NoError(t, first.Wait(ctx, "muteChat", false))
	}
	second := l.BeginExecution()
	for i := 0; i < 10; i++ {
		require.NoError(t, second.Wait(ctx, "muteChat", false))
	}
	assert.Len(t, l.Snapshot().Window, 30)

	// 31st call inside the minute
	err := l.BeginExecution().Wait(ctx, "muteChat", false)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, ReasonWindow, rej.Reason)
	assert.Equal(t, 45500*time.Millisecond, rej.RetryAfter)
	assert.Equal(t, "Rate limit: Too many API calls. Please wait 46 seconds before trying again.", err.Error())

	clock.now = clock.now.Add(61 * time.Second)
	third := l.BeginExecution()
	require.NoError(t, third.Wait(ctx, "muteChat", false))
	assert.Len(t, l.Snapshot().Window, 1, "old entries pruned")
}

func TestWaitCancelled(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	l := New(DefaultConfig(), WithClock(clock.Now))
	s := l.BeginExecution()

	require.NoError(t, s.Wait(context.Background(), "pinChat", false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Wait(ctx, "pinChat", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.Calls())
}

// --- Snapshot Tests ---

func TestScopeSnapshot(t *testing.T) {
	l, clock := newTestLimiter()
	s := l.BeginExecution()
	require.NoError(t, s.Wait(context.Background(), "pinChat", false))

	st := s.Snapshot()
	assert.Equal(t, 1, st.RequestCalls)
	assert.Equal(t, clock.now, st.LastCall)
	assert.Len(t, st.Window, 1)
}

func TestGlobal(t *testing.T) {
	assert.Same(t, Global(), Global())
	assert.Equal(t, 30, Global().Config().MaxPerWindow)
}
