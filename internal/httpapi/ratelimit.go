package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	PerMinute  int
	Burst      int
	RetryAfter time.Duration
	// Paths lists the path prefixes that are limited; empty means all.
	Paths []string
	Now   func() time.Time
}

type clientEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

type clientLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*clientEntry
	swept   time.Time
}

const clientIdle = 10 * time.Minute

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &clientLimiter{cfg: cfg, clients: map[string]*clientEntry{}}
}

func (l *clientLimiter) allow(key string) bool {
	now := l.cfg.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > clientIdle {
		for k, e := range l.clients {
			if now.Sub(e.seen) > clientIdle {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	e, ok := l.clients[key]
	if !ok {
		every := time.Minute / time.Duration(l.cfg.PerMinute)
		e = &clientEntry{lim: rate.NewLimiter(rate.Every(every), l.cfg.Burst)}
		l.clients[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *clientLimiter) applies(path string) bool {
	if len(l.cfg.Paths) == 0 {
		return true
	}
	for _, p := range l.cfg.Paths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ClientKey identifies the caller: X-User-ID, then the first
// X-Forwarded-For hop, then the remote address.
func ClientKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return "user:" + v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if first := strings.TrimSpace(strings.Split(v, ",")[0]); first != "" {
			return "ip:" + first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// ClientRateLimit is a per-client token bucket.
func ClientRateLimit(cfg RateLimitConfig) Middleware {
	l := newClientLimiter(cfg)
	retry := strconv.Itoa(int(l.cfg.RetryAfter / time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || !l.applies(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if !l.allow(ClientKey(r)) {
				w.Header().Set("Retry-After", retry)
				WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests, try again in "+retry+" seconds")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
