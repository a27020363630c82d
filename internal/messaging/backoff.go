package messaging

import (
	"context"
	"math"
	"sync"
	"time"
)

// Backoff yields exponentially growing delays capped at Max. Delays never
// decrease until Reset is called. It is safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration

	mu      sync.Mutex
	attempt int
	current time.Duration
}

// NewBackoff creates a Backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max}
}

// Next records a failed attempt and returns the delay to wait before the next one.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt++
	b.current = exponentialBackoff(b.attempt, b.initial, b.max)
	return b.current
}

// Reset clears the failure streak. It reports whether there was one.
func (b *Backoff) Reset() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempt == 0 {
		return false
	}
	b.attempt = 0
	b.current = 0
	return true
}

// State returns the number of consecutive failures and the current delay.
func (b *Backoff) State() (int, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt, b.current
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) || math.IsInf(backoff, 0) {
		return max
	}
	return time.Duration(backoff)
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
