// Package ratelimit provides per-client rate limiting middleware for the pagewatch API.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/pagewatch/internal/metrics"
	"golang.org/x/time/rate"
)

// Config configures rate limiting
type Config struct {
	// RequestsPerMinute is the sustained rate per client. Zero disables limiting.
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit
	BurstSize int
	// CleanupInterval is how often to drop idle clients
	CleanupInterval time.Duration
	// IdleTTL is how long a client may stay idle before it is forgotten
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults. An extension posts every observed
// event, so the budget is generous.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 600,
		BurstSize:         60,
		CleanupInterval:   time.Minute,
		IdleTTL:           2 * time.Minute,
	}
}

// Limiter tracks one token bucket per client key
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*clientState
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a new rate limiter and starts its cleanup goroutine
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.cleanup()
	return l
}

// Enabled reports whether requests are limited at all.
func (l *Limiter) Enabled() bool {
	return l.cfg.RequestsPerMinute > 0
}

// cleanup removes idle entries periodically
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	for key, state := range l.clients {
		if state.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow checks if a request from key should be allowed
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	now := l.now()
	l.mu.Lock()
	state, ok := l.clients[key]
	if !ok {
		perSecond := rate.Limit(float64(l.cfg.RequestsPerMinute) / 60.0)
		state = &clientState{limiter: rate.NewLimiter(perSecond, l.cfg.BurstSize)}
		l.clients[key] = state
	}
	state.lastSeen = now
	l.mu.Unlock()

	return state.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware returns a Gin middleware that rate limits by client IP
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			metrics.RateLimitedTotal.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}
