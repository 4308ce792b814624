package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/agencydesk/backend/internal/multitenancy"
)

// RateLimiter throttles assistant command runs per tenant. Each run costs
// real model tokens, so the limit is deliberately low compared to normal
// API rate limits.
//
// Fixed one-minute windows per tenant; expired windows are garbage-collected
// in the background.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateLimitWindow
	limit   int
	done    chan struct{}
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing maxPerMinute runs per tenant.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 10
	}
	rl := &RateLimiter{
		windows: make(map[string]*rateLimitWindow),
		limit:   maxPerMinute,
		done:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether the tenant may start another run this minute.
func (rl *RateLimiter) Allow(tenantID string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[tenantID]
	if !ok || now.Sub(window.windowStart) > time.Minute {
		rl.windows[tenantID] = &rateLimitWindow{count: 1, windowStart: now}
		return true
	}
	window.count++
	return window.count <= rl.limit
}

// Middleware rejects over-limit requests with 429. It must run after
// TenantMiddleware so the tenant is already resolved.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := multitenancy.GetTenantID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !rl.Allow(tenantID) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","retry_after_seconds":60}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	close(rl.done)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, window := range rl.windows {
				if now.Sub(window.windowStart) > 2*time.Minute {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
