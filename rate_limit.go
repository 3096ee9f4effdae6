package auth

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the per client login limiter.
type RateLimiterConfig struct {
	// Rate is the number of attempts per second refilled into the bucket.
	Rate float64
	// Burst is the bucket size.
	Burst int
	// MaxClients bounds the number of tracked clients.
	MaxClients int
	// IdleTTL drops limiters for clients not seen within the window.
	IdleTTL time.Duration
	// KeyFunc identifies a client. Defaults to the remote IP.
	KeyFunc func(c *fiber.Ctx) string
	// OnLimited is called when a request is rejected.
	OnLimited func(key string)
}

// RateLimiter hands out a token bucket per client key.
type RateLimiter struct {
	cfg      RateLimiterConfig
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter applies defaults to cfg and returns a limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}

	return &RateLimiter{
		cfg:      cfg,
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.IdleTTL),
	}
}

// Allow reports whether the client identified by key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.Rate), r.cfg.Burst)
		r.limiters.Add(key, limiter)
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// Handler returns the fiber middleware enforcing the limit.
func (r *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := r.cfg.KeyFunc(c)
		if !r.Allow(key) {
			if r.cfg.OnLimited != nil {
				r.cfg.OnLimited(key)
			}
			c.Set(fiber.HeaderRetryAfter, "1")
			return ErrTooManyRequests
		}
		return c.Next()
	}
}
