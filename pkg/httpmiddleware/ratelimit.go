package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Decision is a limiter verdict for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key. The in-memory SlidingWindow serves a
// single replica; the Redis limiter shares counts between replicas.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc derives the bucket key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// RateLimit rejects requests over the limit with 429. Limiter errors let
// the request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := cfg.Limiter.Allow(r.Context(), key(r))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				wait := max(time.Until(d.ResetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeErrorBody(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type window struct {
	prev, curr float64
	start      time.Time
}

// SlidingWindow approximates a sliding window from two fixed windows,
// weighting the previous count by its remaining overlap.
type SlidingWindow struct {
	max    int
	size   time.Duration
	now    func() time.Time
	mu     sync.Mutex
	bucket map[string]*window
}

// NewSlidingWindow allows limit requests per key per size.
func NewSlidingWindow(limit int, size time.Duration) *SlidingWindow {
	return &SlidingWindow{
		max:    limit,
		size:   size,
		now:    time.Now,
		bucket: make(map[string]*window),
	}
}

// Allow implements Limiter.
func (s *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.Truncate(s.size)
	w, ok := s.bucket[key]
	switch {
	case !ok:
		w = &window{start: start}
		s.bucket[key] = w
	case start.Sub(w.start) >= 2*s.size:
		*w = window{start: start}
	case start.After(w.start):
		*w = window{prev: w.curr, start: start}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(s.size)
	used := w.prev*overlap + w.curr

	d := Decision{Limit: s.max, ResetAt: w.start.Add(s.size)}
	if used >= float64(s.max) {
		return d, nil
	}
	w.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(s.max)-used-1), 0)
	return d, nil
}

// Run evicts idle keys every two windows until ctx is done.
func (s *SlidingWindow) Run(ctx context.Context) {
	t := time.NewTicker(2 * s.size)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.evict(s.now())
		}
	}
}

func (s *SlidingWindow) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.bucket {
		if now.Sub(w.start) >= 2*s.size {
			delete(s.bucket, key)
		}
	}
}
