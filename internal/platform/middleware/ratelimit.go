package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 10 * time.Minute
	limiterMaxKeys = 10000
)

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	mu          sync.Mutex
	rps         rate.Limit
	burst       int
	trustedHops int
	maxKeys     int
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
	now         func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRateLimiter creates a limiter. trustedHops is the number of proxies
// in front of the service that append to X-Forwarded-For; zero ignores the
// header and keys on the connection address.
func NewRateLimiter(rps float64, burst, trustedHops int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if trustedHops < 0 {
		trustedHops = 0
	}
	return &RateLimiter{
		rps:         rate.Limit(rps),
		burst:       burst,
		trustedHops: trustedHops,
		maxKeys:     limiterMaxKeys,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).AllowN(rl.now(), 1)
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > limiterIdleTTL {
		rl.removeIdle(now)
	}

	entry, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxKeys {
			rl.shrink(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

func (rl *RateLimiter) removeIdle(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for k, e := range rl.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(rl.limiters, k)
		}
	}
	rl.lastCleanup = now
}

// shrink frees a tenth of the table once it is full, idle entries first,
// so the full scan runs at most once per maxKeys/10 new clients.
func (rl *RateLimiter) shrink(now time.Time) {
	rl.removeIdle(now)
	target := rl.maxKeys - max(rl.maxKeys/10, 1)
	for k := range rl.limiters {
		if len(rl.limiters) <= target {
			return
		}
		delete(rl.limiters, k)
	}
}

// RateLimit rejects clients that exceed their bucket with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey takes the X-Forwarded-For entry written by the outermost
// trusted proxy. Entries left of it are client supplied and ignored. With
// no trusted proxies, or too few entries, the connection address is used.
func (rl *RateLimiter) clientKey(r *http.Request) string {
	if rl.trustedHops > 0 {
		var hops []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, hop := range strings.Split(v, ",") {
				hops = append(hops, strings.TrimSpace(hop))
			}
		}
		if len(hops) >= rl.trustedHops {
			if ip := hops[len(hops)-rl.trustedHops]; ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
