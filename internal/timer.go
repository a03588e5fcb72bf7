package internal

import (
	"context"
	"sync"
	"time"
)

// GameTimer is an explicit, cancellable phase timer. Sessions store the
// handle and must cancel it on every path that supersedes it (a new vote,
// a restart, room teardown); a fired or cancelled timer never calls back
// again.
type GameTimer struct {
	StartTime time.Time
	Duration  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   bool
}

// StartGameTimer schedules onExpire after d. If onTick is non-nil it is
// invoked once per second with the whole seconds remaining, which is how
// the discussion countdown reaches clients. Callbacks run on the timer
// goroutine, never with any session lock held by the caller.
func StartGameTimer(d time.Duration, onTick func(remaining int), onExpire func()) *GameTimer {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t := &GameTimer{
		StartTime: time.Now(),
		Duration:  d,
		cancel:    cancel,
	}

	go func() {
		var tick <-chan time.Time
		if onTick != nil {
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-tick:
				remaining := t.Remaining()
				if remaining > 0 {
					onTick(remaining)
				}
			case <-ctx.Done():
				expired := ctx.Err() == context.DeadlineExceeded
				t.mu.Lock()
				fire := expired && !t.done
				t.done = true
				t.mu.Unlock()
				if fire {
					onExpire()
				}
				return
			}
		}
	}()
	return t
}

// Remaining reports the whole seconds left before expiry, never negative.
func (t *GameTimer) Remaining() int {
	left := t.Duration - time.Since(t.StartTime)
	if left < 0 {
		left = 0
	}
	return int(left / time.Second)
}

// Cancel stops the timer without firing onExpire. Safe to call more than
// once and safe on an already-expired timer.
func (t *GameTimer) Cancel() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	t.cancel()
}
