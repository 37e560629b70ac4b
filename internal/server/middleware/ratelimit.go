package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chabaqa/backend/internal/envelope"
)

const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
	onLimit  func()
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter allows perMinute requests per IP with a burst of the same size.
// perMinute <= 0 returns nil, which disables limiting.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

// OnLimit registers fn to run for every rejected request (e.g. a metrics counter). Nil-safe.
func (l *IPRateLimiter) OnLimit(fn func()) *IPRateLimiter {
	if l != nil {
		l.onLimit = fn
	}
	return l
}

// Allow reports whether ip may make another request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[ip]
	if !ok {
		l.evictIdle(now)
		e = &ipLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (l *IPRateLimiter) evictIdle(now time.Time) {
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
// Buckets are keyed by the IP a preceding TrustedProxies.Middleware resolved, else by the TCP peer.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _ := r.Context().Value(clientIPKey).(string)
		if ip == "" {
			ip = RequestClientIP(r)
		}
		if !l.Allow(ip) {
			if l.onLimit != nil {
				l.onLimit()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			envelope.WriteError(w, http.StatusTooManyRequests, envelope.CodeRateLimited, "too many requests, please try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
