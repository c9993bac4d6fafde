package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/qrdine/pkg/httpmiddleware"
)

// RateLimiter is a fixed-window counter shared by every API replica.
type RateLimiter struct {
	c      *Client
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// NewRateLimiter allows limit requests per key per window.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{c: c, limit: limit, window: window, now: time.Now}
}

// Allow implements httpmiddleware.Limiter.
func (l *RateLimiter) Allow(ctx context.Context, clientKey string) (httpmiddleware.Decision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	k := key("ratelimit", clientKey, start.Format("20060102T150405"))

	n, err := l.c.store.Incr(ctx, k).Result()
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "incr rate counter")
	}
	if n == 1 {
		// Keep the key one extra window so clock skew between replicas
		// does not reset a live counter.
		if err := l.c.store.PExpire(ctx, k, 2*l.window).Err(); err != nil {
			return httpmiddleware.Decision{}, errors.Wrap(err, "expire rate counter")
		}
	}

	d := httpmiddleware.Decision{
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
		Allowed: n <= int64(l.limit),
	}
	if d.Allowed {
		d.Remaining = l.limit - int(n)
	}
	return d, nil
}
