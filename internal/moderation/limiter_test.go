package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T1murKa41/pixilgnang/internal/state"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

func openDB(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(state.NewCooldownStore(openDB(t)), window)
	l.SetClock(clock.Now)
	return l, clock
}

func TestLimiterFirstPublishAllowed(t *testing.T) {
	l, _ := newTestLimiter(t, 1200*time.Second)

	res, err := l.Reserve(context.Background(), "pg")
	require.NoError(t, err)
	res.Release()
}

func TestLimiterRemainingSeconds(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 1200*time.Second)

	res, err := l.Reserve(ctx, "pg")
	require.NoError(t, err)
	require.NoError(t, res.Commit(ctx))

	clock.Advance(600 * time.Second)
	_, err = l.Reserve(ctx, "pg")
	var rl *types.RateLimitedError
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.Equal(t, 600, rl.Remaining)
	assert.Equal(t, "pg", rl.Destination)
}

func TestLimiterRoundsUp(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 1200*time.Second)

	res, err := l.Reserve(ctx, "pg")
	require.NoError(t, err)
	require.NoError(t, res.Commit(ctx))

	clock.Advance(1199*time.Second + 500*time.Millisecond)
	_, err = l.Reserve(ctx, "pg")
	var rl *types.RateLimitedError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 1, rl.Remaining)

	clock.Advance(500 * time.Millisecond)
	res, err = l.Reserve(ctx, "pg")
	require.NoError(t, err, "window elapsed exactly")
	res.Release()
}

func TestLimiterReleaseDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 1200*time.Second)

	res, err := l.Reserve(ctx, "pg")
	require.NoError(t, err)
	res.Release()
	res.Release()

	res, err = l.Reserve(ctx, "pg")
	require.NoError(t, err, "released reservation must not start the window")
	res.Release()
}

func TestLimiterDestinationsIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 1200*time.Second)

	res, err := l.Reserve(ctx, "pg")
	require.NoError(t, err)
	require.NoError(t, res.Commit(ctx))

	res, err = l.Reserve(ctx, "poco")
	require.NoError(t, err)
	res.Release()
}

func TestLimiterConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, denied := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Reserve(ctx, "pg")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				denied++
				return
			}
			allowed++
			assert.NoError(t, res.Commit(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, allowed)
	assert.Equal(t, 7, denied)
	assert.Equal(t, 0, l.locks.size())
}
