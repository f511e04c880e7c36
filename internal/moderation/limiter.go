package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Limiter allows at most one publish per destination per window. It is a
// fixed gate: idle time does not accumulate credit.
type Limiter struct {
	store  types.CooldownStore
	window time.Duration
	now    func() time.Time
	locks  *keyedMutex
}

// NewLimiter creates a Limiter that allows one publish per destination
// every window.
func NewLimiter(store types.CooldownStore, window time.Duration) *Limiter {
	return &Limiter{store: store, window: window, now: time.Now, locks: newKeyedMutex()}
}

// SetClock replaces the time source.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Window returns the cooldown window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Reservation holds a destination's lock between a successful check and the
// outcome of the publish. Exactly one of Commit and Release must be called.
type Reservation struct {
	l           *Limiter
	destination string
	unlock      func()
	once        sync.Once
}

// Reserve checks the destination's cooldown. When the window is still open
// it returns a *types.RateLimitedError and holds nothing. Otherwise it
// returns a Reservation that keeps other publishes to the same destination
// waiting until Commit or Release.
func (l *Limiter) Reserve(ctx context.Context, destination string) (*Reservation, error) {
	unlock := l.locks.Lock(destination)

	last, ok, err := l.store.LastPublish(ctx, destination)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("read cooldown: %w", err)
	}
	if ok {
		if remaining := l.remaining(last); remaining > 0 {
			unlock()
			return nil, &types.RateLimitedError{Destination: destination, Remaining: remaining}
		}
	}
	return &Reservation{l: l, destination: destination, unlock: unlock}, nil
}

// remaining returns whole seconds left in the window, rounded up.
func (l *Limiter) remaining(last time.Time) int {
	left := l.window - l.now().Sub(last)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Commit records a successful publish at the current time and releases the
// destination.
func (r *Reservation) Commit(ctx context.Context) error {
	err := r.l.store.SetLastPublish(ctx, r.destination, r.l.now())
	r.Release()
	if err != nil {
		return fmt.Errorf("write cooldown: %w", err)
	}
	return nil
}

// Release gives up the reservation without touching the timestamp.
func (r *Reservation) Release() {
	r.once.Do(r.unlock)
}
