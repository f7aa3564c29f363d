package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// hit sends one GET through h after applying setup to the request.
func hit(h http.Handler, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func withHeader(key, value string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func TestRateLimit_Burst(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := hit(h, nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, w.Header().Get("Retry-After"))
	}

	w := hit(h, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "20", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_Keys(t *testing.T) {
	for _, tt := range []struct {
		name     string
		cfg      RateLimitConfig
		first    func(*http.Request)
		same     func(*http.Request)
		separate func(*http.Request)
	}{
		{
			name:     "remote addr",
			first:    fromAddr("10.0.0.1:1234"),
			same:     fromAddr("10.0.0.1:5678"),
			separate: fromAddr("10.0.0.2:1234"),
		},
		{
			name:     "forwarded for",
			first:    withHeader("X-Forwarded-For", "203.0.113.50, 70.41.3.18"),
			same:     withHeader("X-Forwarded-For", "203.0.113.50"),
			separate: withHeader("X-Real-IP", "203.0.113.51"),
		},
		{
			name:     "api key",
			cfg:      RateLimitConfig{KeyFunc: APIKeyOrIP("X-API-Key")},
			first:    withHeader("X-API-Key", "alice"),
			same:     withHeader("X-API-Key", "alice"),
			separate: withHeader("X-API-Key", "bob"),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Max, cfg.Window = 1, time.Minute
			h := RateLimit(cfg)(okHandler())

			assert.Equal(t, http.StatusOK, hit(h, tt.first).Code)
			assert.Equal(t, http.StatusTooManyRequests, hit(h, tt.same).Code)
			assert.Equal(t, http.StatusOK, hit(h, tt.separate).Code)
		})
	}
}

func TestRateLimit_Refill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	for range 2 {
		_, _, allowed := rl.allow("k", now)
		require.True(t, allowed)
	}

	_, retryAfter, allowed := rl.allow("k", now)
	assert.False(t, allowed)
	assert.InDelta(t, float64(30*time.Second), float64(retryAfter), float64(time.Millisecond))

	_, _, allowed = rl.allow("k", now.Add(31*time.Second))
	assert.True(t, allowed, "one token per Window/Max")
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	rl.allow("old", now)
	rl.allow("fresh", now.Add(50*time.Second))
	rl.cleanup(now.Add(time.Minute))

	assert.NotContains(t, rl.entries, "old")
	assert.Contains(t, rl.entries, "fresh")
}

func TestAPIKeyOrIP(t *testing.T) {
	key := APIKeyOrIP("X-API-Key")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1", key(req))

	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, "key:secret", key(req))
}
