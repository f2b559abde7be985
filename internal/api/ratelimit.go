package api

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("rate limit exceeded, please try again later")

// RateLimiter is a per-client token bucket. Each client gets a bucket of
// RequestsPerMinute+BurstSize tokens refilled at RequestsPerMinute.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    int
	every    rate.Limit
	cleanup  time.Duration
	stopOnce sync.Once
	stopChan chan struct{}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int           // Sustained rate (default: 60)
	BurstSize         int           // Extra requests allowed on top of the rate (default: 10)
	CleanupInterval   time.Duration // How often idle clients are dropped (default: 5m)
}

// DefaultRateLimitConfig returns the defaults for API rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	// BurstSize of 0 is valid - don't override it
	if cfg.BurstSize < 0 {
		cfg.BurstSize = 0
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    cfg.RequestsPerMinute + cfg.BurstSize,
		every:    rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		cleanup:  cfg.CleanupInterval,
		stopChan: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Limit returns the bucket size.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow reports whether a request from clientID may proceed and consumes a token if so.
func (rl *RateLimiter) Allow(clientID string) bool {
	return rl.client(clientID).Allow()
}

// GetRemaining returns the whole tokens left for a client.
func (rl *RateLimiter) GetRemaining(clientID string) int {
	rl.mu.Lock()
	c, exists := rl.clients[clientID]
	rl.mu.Unlock()

	if !exists {
		return rl.limit
	}

	remaining := int(math.Floor(c.limiter.Tokens()))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears the rate limit for a specific client.
func (rl *RateLimiter) Reset(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimiter) client(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.clients[clientID]
	if !exists {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.clients[clientID] = c
	}
	c.lastAccess = time.Now()
	return c.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanupExpired()
		}
	}
}

// cleanupExpired drops clients idle long enough for their bucket to be full again.
func (rl *RateLimiter) cleanupExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * time.Minute)
	for clientID, c := range rl.clients {
		if c.lastAccess.Before(cutoff) {
			delete(rl.clients, clientID)
		}
	}
}

// RateLimitMiddleware enforces rl on every request, keyed by client IP.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enforce(w, rl, getClientIP(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// enforce writes the rate limit headers and, when the client is over its
// limit, a 429 response. It returns false in that case.
func enforce(w http.ResponseWriter, rl *RateLimiter, clientID string) bool {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

	if !rl.Allow(clientID) {
		w.Header().Set("Retry-After", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		RespondError(w, http.StatusTooManyRequests, errRateLimited)
		return false
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.GetRemaining(clientID)))
	return true
}

// getClientIP extracts the client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers first (for reverse proxies),
// then falls back to RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PathRateLimiter applies different limits to different path prefixes.
// The longest matching prefix wins.
type PathRateLimiter struct {
	defaultLimiter *RateLimiter
	pathLimiters   map[string]*RateLimiter
	mu             sync.RWMutex
}

// NewPathRateLimiter creates a rate limiter with path-specific limits.
func NewPathRateLimiter(defaultCfg RateLimitConfig) *PathRateLimiter {
	return &PathRateLimiter{
		defaultLimiter: NewRateLimiter(defaultCfg),
		pathLimiters:   make(map[string]*RateLimiter),
	}
}

// SetPathLimit sets a specific rate limit for a path prefix.
func (prl *PathRateLimiter) SetPathLimit(pathPrefix string, cfg RateLimitConfig) {
	prl.mu.Lock()
	defer prl.mu.Unlock()
	if old, ok := prl.pathLimiters[pathPrefix]; ok {
		old.Stop()
	}
	prl.pathLimiters[pathPrefix] = NewRateLimiter(cfg)
}

// Allow checks if a request should be allowed based on client and path.
func (prl *PathRateLimiter) Allow(clientID, path string) bool {
	return prl.GetLimiterForPath(path).Allow(clientID)
}

// GetLimiterForPath returns the limiter governing path.
func (prl *PathRateLimiter) GetLimiterForPath(path string) *RateLimiter {
	prl.mu.RLock()
	defer prl.mu.RUnlock()

	var (
		best    *RateLimiter
		bestLen = -1
	)
	for prefix, limiter := range prl.pathLimiters {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			best, bestLen = limiter, len(prefix)
		}
	}
	if best != nil {
		return best
	}
	return prl.defaultLimiter
}

// Stop stops all rate limiters.
func (prl *PathRateLimiter) Stop() {
	prl.mu.Lock()
	defer prl.mu.Unlock()

	prl.defaultLimiter.Stop()
	for _, limiter := range prl.pathLimiters {
		limiter.Stop()
	}
}

// PathRateLimitMiddleware limits /api/ requests with prl. Static UI files are not limited.
func PathRateLimitMiddleware(prl *PathRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				if !enforce(w, prl.GetLimiterForPath(r.URL.Path), getClientIP(r)) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// newServerRateLimiter builds the limiter used by the server: the configured
// rate by default, looser for health checks, tighter for the SSE stream and
// for refreshes, which fan out to the registry.
func newServerRateLimiter(requestsPerMinute int) *PathRateLimiter {
	cfg := DefaultRateLimitConfig()
	cfg.RequestsPerMinute = requestsPerMinute
	prl := NewPathRateLimiter(cfg)

	prl.SetPathLimit("/api/health", RateLimitConfig{
		RequestsPerMinute: 2 * requestsPerMinute,
		BurstSize:         20,
	})
	prl.SetPathLimit("/api/events", RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
	})
	prl.SetPathLimit("/api/refresh", RateLimitConfig{
		RequestsPerMinute: max(requestsPerMinute/4, 1),
		BurstSize:         5,
	})
	return prl
}
