package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Acquire(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := newRateLimiter(10, 5)

		for i := 0; i < 5; i++ {
			release, reason := limiter.acquire("a")
			require.NotNil(t, release)
			assert.Empty(t, reason)
		}
		requests, concurrent := limiter.stats("a")
		assert.Equal(t, 5, requests)
		assert.Equal(t, 5, concurrent)
	})

	t.Run("should reject when concurrent limit exceeded", func(t *testing.T) {
		limiter := newRateLimiter(100, 2)

		first, _ := limiter.acquire("a")
		_, _ = limiter.acquire("a")

		release, reason := limiter.acquire("a")
		assert.Nil(t, release)
		assert.Equal(t, reasonConcurrent, reason)

		first()
		first()
		release, _ = limiter.acquire("a")
		assert.NotNil(t, release)
	})

	t.Run("should reject when rate limit exceeded", func(t *testing.T) {
		limiter := newRateLimiter(3, 0)

		for i := 0; i < 3; i++ {
			release, _ := limiter.acquire("a")
			require.NotNil(t, release)
			release()
		}

		release, reason := limiter.acquire("a")
		assert.Nil(t, release)
		assert.Equal(t, reasonRate, reason)

		other, _ := limiter.acquire("b")
		assert.NotNil(t, other, "limits are per client")
	})

	t.Run("should allow requests after window expires", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		limiter := newRateLimiter(1, 0)
		limiter.now = func() time.Time { return now }

		release, _ := limiter.acquire("a")
		require.NotNil(t, release)
		release()

		_, reason := limiter.acquire("a")
		assert.Equal(t, reasonRate, reason)

		now = now.Add(61 * time.Second)
		release, _ = limiter.acquire("a")
		assert.NotNil(t, release)
	})

	t.Run("should sweep idle clients", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		limiter := newRateLimiter(10, 0)
		limiter.now = func() time.Time { return now }

		release, _ := limiter.acquire("idle")
		release()
		require.Len(t, limiter.clients, 1)

		now = now.Add(2 * time.Minute)
		_, _ = limiter.acquire("active")

		_, idle := limiter.clients["idle"]
		assert.False(t, idle)
		assert.Len(t, limiter.clients, 1)
	})
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Run("should pass through when disabled", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		limiter := newRateLimiter(0, 0)
		h := limiter.middleware(next)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		assert.Empty(t, limiter.clients)
	})

	t.Run("should answer 429 and release after the handler", func(t *testing.T) {
		limiter := newRateLimiter(2, 1)
		h := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
		_, concurrent := limiter.stats("10.0.0.1")
		assert.Equal(t, 0, concurrent)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), reasonRate)
	})
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.4:40000"
	assert.Equal(t, "192.168.1.4", clientKey(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientKey(req))
}
