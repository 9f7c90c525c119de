package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter holds rate limiters for each client IP address
type IPRateLimiter struct {
	limiters map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	stop     chan struct{}
	once     sync.Once
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter
// rps: requests per second allowed per IP
// burst: maximum burst size
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limiter := &IPRateLimiter{
		limiters: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		stop:     make(chan struct{}),
		now:      time.Now,
	}

	go limiter.cleanupRoutine(time.Minute)

	return limiter
}

// Stop terminates the cleanup goroutine
func (i *IPRateLimiter) Stop() {
	i.once.Do(func() { close(i.stop) })
}

// Allow reports whether a request from ip may proceed now
func (i *IPRateLimiter) Allow(ip string) bool {
	i.mu.Lock()
	v, exists := i.limiters[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.rps, i.burst)}
		i.limiters[ip] = v
	}
	v.lastSeen = i.now()
	i.mu.Unlock()

	return v.limiter.Allow()
}

// cleanupRoutine periodically removes limiters of idle clients
func (i *IPRateLimiter) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.evictIdle()
		case <-i.stop:
			return
		}
	}
}

func (i *IPRateLimiter) evictIdle() {
	i.mu.Lock()
	defer i.mu.Unlock()

	threshold := i.now().Add(-i.idleTTL)
	for ip, v := range i.limiters {
		if v.lastSeen.Before(threshold) {
			delete(i.limiters, ip)
		}
	}
}

// RateLimit middleware limits requests per client IP address
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"success": false,
					"error":   "rate limit exceeded, please try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote host
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
