package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	reasonConcurrent = "too many concurrent requests"
	reasonRate       = "rate limit exceeded"
)

// clientWindow is the sliding one-minute window of one client.
type clientWindow struct {
	requests   []time.Time
	concurrent int
}

func (c *clientWindow) trim(now time.Time) {
	cutoff := now.Add(-time.Minute)
	valid := c.requests[:0]
	for _, t := range c.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	c.requests = valid
}

// rateLimiter limits requests per minute and concurrent requests per client
// address. A zero limit disables that check.
type rateLimiter struct {
	mu            sync.Mutex
	perMinute     int
	maxConcurrent int
	clients       map[string]*clientWindow
	lastSweep     time.Time
	now           func() time.Time
}

func newRateLimiter(perMinute, maxConcurrent int) *rateLimiter {
	return &rateLimiter{
		perMinute:     perMinute,
		maxConcurrent: maxConcurrent,
		clients:       make(map[string]*clientWindow),
		now:           time.Now,
	}
}

// acquire admits one request for key. It returns a release func, or the
// reason the request was refused.
func (l *rateLimiter) acquire(key string) (func(), string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[key]
	if !ok {
		c = &clientWindow{}
		l.clients[key] = c
	}
	if l.maxConcurrent > 0 && c.concurrent >= l.maxConcurrent {
		return nil, reasonConcurrent
	}
	c.trim(now)
	if l.perMinute > 0 && len(c.requests) >= l.perMinute {
		return nil, reasonRate
	}

	c.requests = append(c.requests, now)
	c.concurrent++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if c.concurrent > 0 {
				c.concurrent--
			}
		})
	}, ""
}

// sweep drops idle clients at most once a minute.
func (l *rateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		c.trim(now)
		if c.concurrent == 0 && len(c.requests) == 0 {
			delete(l.clients, key)
		}
	}
}

func (l *rateLimiter) stats(key string) (requests, concurrent int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		return 0, 0
	}
	c.trim(l.now())
	return len(c.requests), c.concurrent
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	if l.perMinute <= 0 && l.maxConcurrent <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, reason := l.acquire(clientKey(r))
		if release == nil {
			writeError(w, http.StatusTooManyRequests, reason)
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
