package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an authenticated caller may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the request budget for one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// sweepThreshold is the window-table size above which stale windows are
// dropped before a new one is added.
const sweepThreshold = 1024

// InProcessLimiter enforces fixed-window request budgets in memory.
// The window key is the identity's workspace when it carries one,
// otherwise its subject, so callers sharing a workspace draw from one
// budget. The tier is part of the key.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count     int
	startedAt time.Time
}

// NewInProcessLimiter creates a limiter with per-tier budgets. Tiers
// absent from the map fall back to defaultRPM; a budget of zero or
// less means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*window),
	}
}

// Allow counts the request against its window and returns
// ErrTooManyRequests once the window's budget is spent. A window
// resets one minute after its first request.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	principal := identity.WorkspaceID()
	if principal == "" {
		principal = identity.Subject
	}
	key := principal + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.startedAt) >= time.Minute {
		if len(l.windows) >= sweepThreshold {
			l.sweep(now)
		}
		l.windows[key] = &window{count: 1, startedAt: now}
		return nil
	}

	w.count++
	if w.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops windows that have aged out. Mutex held.
func (l *InProcessLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.startedAt) >= time.Minute {
			delete(l.windows, key)
		}
	}
}
