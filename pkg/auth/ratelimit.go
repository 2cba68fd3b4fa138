package auth

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles requests per caller after authentication.
type Limiter interface {
	Allow(ctx context.Context, c *Caller) error
}

// TierLimit is the request budget for one service tier.
type TierLimit struct {
	RequestsPerMinute int
}

// MemoryLimiter counts requests per caller in fixed one-minute windows, in
// process memory. It protects a single gateway instance from runaway
// clients; it is not a billing-grade quota.
type MemoryLimiter struct {
	tiers      map[string]TierLimit
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	startAt time.Time
}

// NewMemoryLimiter creates a limiter with per-tier budgets. Callers whose
// tier has no entry get defaultRPM; a budget of zero or below disables
// limiting for that tier.
func NewMemoryLimiter(tiers map[string]TierLimit, defaultRPM int) *MemoryLimiter {
	return &MemoryLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*window),
	}
}

// Allow returns ErrRateLimited once the caller's window is over budget.
func (l *MemoryLimiter) Allow(_ context.Context, c *Caller) error {
	rpm := l.defaultRPM
	if tl, ok := l.tiers[c.Tier]; ok {
		rpm = tl.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[c.ID]
	if !ok || now.Sub(w.startAt) >= time.Minute {
		l.prune(now)
		l.windows[c.ID] = &window{count: 1, startAt: now}
		return nil
	}

	w.count++
	if w.count > rpm {
		return ErrRateLimited
	}
	return nil
}

// prune drops expired windows so idle callers do not accumulate. Called with
// the lock held, on window rollover only.
func (l *MemoryLimiter) prune(now time.Time) {
	for id, w := range l.windows {
		if now.Sub(w.startAt) >= time.Minute {
			delete(l.windows, id)
		}
	}
}
