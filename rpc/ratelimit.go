package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	perSecond rate.Limit
	burst     int
	mu        sync.Mutex
	visitors  map[string]*visitor
	clockNow  func() time.Time
	onReject  func(client string)
}

// NewRateLimiter builds a limiter allowing requestsPerMinute with the given
// burst. Non-positive values fall back to one request per second.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	perSecond := float64(requestsPerMinute) / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  make(map[string]*visitor),
		clockNow:  time.Now,
	}
}

// Allow reports whether client may issue another request now.
func (r *RateLimiter) Allow(client string) bool {
	if r == nil {
		return true
	}
	if client == "" {
		client = "unknown"
	}
	now := r.clockNow()
	r.mu.Lock()
	v, ok := r.visitors[client]
	if !ok {
		r.pruneLocked(now)
		v = &visitor{limiter: rate.NewLimiter(r.perSecond, r.burst)}
		r.visitors[client] = v
	}
	v.lastSeen = now
	limiter := v.limiter
	r.mu.Unlock()
	return limiter.AllowN(now, 1)
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	for id, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(r.visitors, id)
		}
	}
}

// Middleware rejects requests over the limit with a JSON-RPC error.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		client := clientSource(req)
		if !r.Allow(client) {
			if r.onReject != nil {
				r.onReject(client)
			}
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", client)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientSource(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
