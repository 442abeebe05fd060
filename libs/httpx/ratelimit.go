package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientKey buckets by authenticated user when the gateway has attached one,
// otherwise by client address.
func ClientKey(r *http.Request) string {
	if uid := strings.TrimSpace(r.Header.Get("X-User-Id")); uid != "" {
		return "user:" + uid
	}
	return "ip:" + clientAddr(r)
}

// decision is the outcome of counting one request in a fixed window.
type decision struct {
	limit    int
	count    int64
	resetsIn time.Duration
}

func (d decision) allowed() bool { return d.count <= int64(d.limit) }

// writeHeaders sets the X-RateLimit-* headers and, when the request is
// refused, Retry-After.
func (d decision) writeHeaders(h http.Header) {
	remaining := int64(d.limit) - d.count
	if remaining < 0 {
		remaining = 0
	}
	reset := int64(math.Ceil(d.resetsIn.Seconds()))
	if reset < 1 {
		reset = 1
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	if !d.allowed() {
		h.Set("Retry-After", strconv.FormatInt(reset, 10))
	}
}

// RateLimiter is the single-replica fixed-window limiter used when no Redis
// is configured.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int64
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware(key KeyFunc) Middleware {
	if key == nil {
		key = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := rl.count(key(r))
			d.writeHeaders(w.Header())
			if !d.allowed() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) count(key string) decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.visitors) > 10000 {
		for k, v := range rl.visitors {
			if now.After(v.resetTime) {
				delete(rl.visitors, k)
			}
		}
	}
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		v = &visitor{resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	// Refused requests are not counted so a client that backs off recovers
	// as soon as the window resets.
	if v.count < int64(rl.limit) {
		v.count++
		return decision{limit: rl.limit, count: v.count, resetsIn: v.resetTime.Sub(now)}
	}
	return decision{limit: rl.limit, count: v.count + 1, resetsIn: v.resetTime.Sub(now)}
}

func clientAddr(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
