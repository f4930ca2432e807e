package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RateLimitConfig bounds requests per client IP over a sliding window. Run
// submissions get their own, tighter budget since each one fans out into
// many engine calls.
type RateLimitConfig struct {
	Enabled           bool
	GlobalMaxRequests int
	RunMaxRequests    int
	Window            time.Duration
}

// DefaultRateLimitConfig returns the API defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		GlobalMaxRequests: 300,
		RunMaxRequests:    10,
		Window:            time.Minute,
	}
}

type rateLimiterEntry struct {
	mu       sync.Mutex
	requests []time.Time
}

// RateLimiter counts requests per client IP in a sliding window
type RateLimiter struct {
	entries     sync.Map // map[string]*rateLimiterEntry
	maxRequests int
	window      time.Duration
	name        string
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window
func NewRateLimiter(name string, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		name:        name,
		now:         time.Now,
	}
}

// Allow records a request from ip and reports whether it is within budget
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()

	val, _ := rl.entries.LoadOrStore(ip, &rateLimiterEntry{})
	entry := val.(*rateLimiterEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := now.Add(-rl.window)
	kept := entry.requests[:0]
	for _, at := range entry.requests {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	entry.requests = kept

	if len(entry.requests) >= rl.maxRequests {
		log.Warn().
			Str("ip", ip).
			Str("limiter", rl.name).
			Int("max", rl.maxRequests).
			Dur("window", rl.window).
			Msg("Rate limit exceeded")
		return false
	}

	entry.requests = append(entry.requests, now)
	return true
}

// Cleanup drops clients with no requests inside twice the window
func (rl *RateLimiter) Cleanup() {
	cutoff := rl.now().Add(-2 * rl.window)
	rl.entries.Range(func(key, value any) bool {
		entry := value.(*rateLimiterEntry)
		entry.mu.Lock()
		stale := len(entry.requests) == 0 || !entry.requests[len(entry.requests)-1].After(cutoff)
		entry.mu.Unlock()
		if stale {
			rl.entries.Delete(key)
		}
		return true
	})
}

// Middleware rejects over-budget requests with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", fmt.Sprintf("%.0f", rl.window.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("Maximum %d requests per %v allowed", rl.maxRequests, rl.window),
				"retry_after": rl.window.Seconds(),
			})
			return
		}
		c.Next()
	}
}

// rateLimits holds the limiter tiers; a disabled config yields pass-through
// middleware
type rateLimits struct {
	global *RateLimiter
	runs   *RateLimiter
}

func newRateLimits(cfg RateLimitConfig) *rateLimits {
	if !cfg.Enabled {
		return &rateLimits{}
	}
	defaults := DefaultRateLimitConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.GlobalMaxRequests <= 0 {
		cfg.GlobalMaxRequests = defaults.GlobalMaxRequests
	}
	if cfg.RunMaxRequests <= 0 {
		cfg.RunMaxRequests = defaults.RunMaxRequests
	}
	return &rateLimits{
		global: NewRateLimiter("global", cfg.GlobalMaxRequests, cfg.Window),
		runs:   NewRateLimiter("runs", cfg.RunMaxRequests, cfg.Window),
	}
}

func passThrough(c *gin.Context) { c.Next() }

func (r *rateLimits) globalMiddleware() gin.HandlerFunc {
	if r.global == nil {
		return passThrough
	}
	return r.global.Middleware()
}

func (r *rateLimits) runMiddleware() gin.HandlerFunc {
	if r.runs == nil {
		return passThrough
	}
	return r.runs.Middleware()
}

// startCleanup prunes idle clients every window until ctx is done
func (r *rateLimits) startCleanup(ctx context.Context) {
	if r.global == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(r.global.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.global.Cleanup()
				r.runs.Cleanup()
				log.Debug().Msg("Rate limiter cleanup completed")
			}
		}
	}()
}
