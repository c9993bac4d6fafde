package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newWindow(limit int) (*SlidingWindow, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSlidingWindow(limit, time.Minute)
	s.now = c.now
	return s, c
}

func hit(h http.Handler, remote string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderAndOver(t *testing.T) {
	lim, _ := newWindow(2)
	h := RateLimit(RateLimitConfig{Limiter: lim})(okHandler())

	w := hit(h, "10.0.0.1:9999")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999").Code)

	w = hit(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
	assert.Equal(t, "rate_limited", body["error"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	lim, _ := newWindow(1)
	h := RateLimit(RateLimitConfig{Limiter: lim})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:5678").Code)
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	lim, _ := newWindow(1)
	h := RateLimit(RateLimitConfig{Limiter: lim})(okHandler())

	xff := "203.0.113.50, 70.41.3.18"
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", "X-Forwarded-For", xff).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:5555", "X-Forwarded-For", xff).Code)
}

func TestRateLimit_CustomKey(t *testing.T) {
	lim, _ := newWindow(1)
	h := RateLimit(RateLimitConfig{
		Limiter: lim,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("api_key") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "api_key", "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "2.2.2.2:2", "api_key", "a").Code)
	assert.Equal(t, http.StatusOK, hit(h, "1.1.1.1:1", "api_key", "b").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis: connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: brokenLimiter{}})(okHandler())
	w := hit(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestSlidingWindow_Slides(t *testing.T) {
	lim, c := newWindow(4)
	ctx := context.Background()

	for range 4 {
		d, err := lim.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, _ := lim.Allow(ctx, "k")
	require.False(t, d.Allowed)
	assert.Equal(t, c.t.Add(time.Minute), d.ResetAt)

	// Halfway into the next window half of the previous count still weighs in.
	c.t = c.t.Add(90 * time.Second)
	d, _ = lim.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	d, _ = lim.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	d, _ = lim.Allow(ctx, "k")
	assert.False(t, d.Allowed)

	// Two idle windows forget everything.
	c.t = c.t.Add(3 * time.Minute)
	d, _ = lim.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestSlidingWindow_Evict(t *testing.T) {
	lim, c := newWindow(1)
	_, _ = lim.Allow(context.Background(), "old")
	c.t = c.t.Add(2 * time.Minute)
	_, _ = lim.Allow(context.Background(), "new")

	lim.evict(c.t)
	assert.NotContains(t, lim.bucket, "old")
	assert.Contains(t, lim.bucket, "new")
}
