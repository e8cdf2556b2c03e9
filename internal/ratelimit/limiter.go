// Package ratelimit implements fixed-window counters keyed by an arbitrary
// string such as "otp:" + phone. The window opens on the first hit and resets
// wholesale once it is older than the configured duration.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
)

// Store counts hits in the current window for key. It reports whether this
// hit was admitted and the count after it. A denied hit is not counted.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (allowed bool, count int, err error)
}

// SecurityRecorder receives a security event for every denial.
type SecurityRecorder interface {
	Security(ctx context.Context, event string, meta map[string]any)
}

const EventRateLimitExceeded = "rate_limit_exceeded"

type Limiter struct {
	store    Store
	security SecurityRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, security SecurityRecorder, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, security: security, logger: logger, now: time.Now}
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check admits at most points hits per duration for key. Storage errors fail
// open: the hit is allowed and the error is logged.
func (l *Limiter) Check(ctx context.Context, key string, points int, duration time.Duration) bool {
	if points <= 0 {
		points = 1
	}
	if duration <= 0 {
		duration = time.Minute
	}

	allowed, count, err := l.store.Take(ctx, key, points, duration, l.now().UTC())
	if err != nil {
		metrics.RateLimitFailOpen.Inc()
		l.logger.Warn("rate limit store failed, allowing request", "key", key, "error", err)
		return true
	}
	if allowed {
		return true
	}

	metrics.RateLimitDenied.WithLabelValues(action(key)).Inc()
	if l.security != nil {
		l.security.Security(ctx, EventRateLimitExceeded, map[string]any{
			"key":      key,
			"points":   points,
			"duration": duration.String(),
			"count":    count,
		})
	}
	return false
}

// action is the key prefix, used as a low-cardinality metric label.
func action(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
