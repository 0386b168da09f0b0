// Package ratelimit implements the sliding-window throttle every REST
// session calls before issuing a request, plus a weight-reservation
// variant for venues that assign per-endpoint weights.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate with an explicit request-weight
// reservation on top of the token bucket, and a venue-signaled cooldown
// gate for 429 responses.
type Limiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	cooldownEnd time.Time
}

// New creates a Limiter allowing maxPerWindow requests per window, with a
// burst equal to maxPerWindow (the sliding-window deque collapses to a
// token bucket of that depth).
func New(maxPerWindow int, window time.Duration) *Limiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 1
	}
	r := rate.Limit(float64(maxPerWindow) / window.Seconds())
	return &Limiter{limiter: rate.NewLimiter(r, maxPerWindow)}
}

// Throttle blocks the caller until a token is available and any active
// cooldown has elapsed.
func (l *Limiter) Throttle(ctx context.Context) error {
	l.mu.Lock()
	wait := time.Until(l.cooldownEnd)
	l.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.limiter.Wait(ctx)
}

// TryReserve attempts to reserve weight tokens without blocking, returning
// false if the budget is unavailable. Used by venues that weight
// individual endpoints.
func (l *Limiter) TryReserve(weight int) bool {
	if weight <= 0 {
		weight = 1
	}
	reservation := l.limiter.ReserveN(time.Now(), weight)
	if !reservation.OK() {
		return false
	}
	if reservation.Delay() > 0 {
		reservation.Cancel()
		return false
	}
	return true
}

// EnterCooldown defers subsequent calls until the cooldown d elapses. No
// adapter or REST session calls it: neither an HTTP 429 nor a venue
// rate-limit error code puts the limiter into cooldown.
func (l *Limiter) EnterCooldown(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	end := time.Now().Add(d)
	if end.After(l.cooldownEnd) {
		l.cooldownEnd = end
	}
}
