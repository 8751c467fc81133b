package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	sweepInterval = 5 * time.Minute
	idleTTL       = 10 * time.Minute
)

// RateLimiter keeps a token bucket per caller. Buckets idle for idleTTL are swept.
type RateLimiter struct {
	perMinute int
	burst     int
	every     rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket

	done   chan struct{}
	logger zerolog.Logger
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// decision is the outcome of charging one request to a bucket
type decision struct {
	allowed    bool
	remaining  int
	resetAt    time.Time
	retryAfter time.Duration
}

// NewRateLimiterWithConfig allows perMinute requests per caller with bursts of up to burst
func NewRateLimiterWithConfig(perMinute, burst int) *RateLimiter {
	rl := &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		every:     rate.Limit(float64(perMinute) / 60),
		buckets:   make(map[string]*bucket),
		done:      make(chan struct{}),
		logger:    log.With().Str("component", "rate_limiter").Logger(),
	}
	go rl.sweep()
	return rl
}

// Allow charges one request to key
func (r *RateLimiter) Allow(key string) bool {
	return r.take(key, time.Now()).allowed
}

func (r *RateLimiter) take(key string, now time.Time) decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.every, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now

	d := decision{allowed: b.limiter.AllowN(now, 1)}
	tokens := b.limiter.TokensAt(now)
	d.remaining = int(math.Max(0, math.Floor(tokens)))
	d.resetAt = now.Add(r.refill(float64(r.burst) - tokens))
	if !d.allowed {
		d.retryAfter = r.refill(1 - tokens)
	}
	return d
}

// refill is how long the bucket needs to gain n tokens
func (r *RateLimiter) refill(n float64) time.Duration {
	if n <= 0 || r.every <= 0 {
		return 0
	}
	return time.Duration(n / float64(r.every) * float64(time.Second))
}

func (r *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.mu.Lock()
			for key, b := range r.buckets {
				if now.Sub(b.lastSeen) > idleTTL {
					delete(r.buckets, key)
				}
			}
			r.mu.Unlock()
		case <-r.done:
			return
		}
	}
}

// Stop ends the sweeper
func (r *RateLimiter) Stop() {
	close(r.done)
}

// rateLimitKey buckets authenticated requests by user and anonymous ones by client IP
func rateLimitKey(c echo.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.RealIP()
}

// RateLimitMiddleware rejects callers over their budget with 429 and reports X-RateLimit-* headers
func RateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.perMinute)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKey(c)
			d := rl.take(key, time.Now())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

			if d.allowed {
				return next(c)
			}

			retryAfter := int(math.Ceil(d.retryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			rl.logger.Warn().Str("key", key).Int("retry_after", retryAfter).Msg("Rate limit exceeded")
			return rateLimitError(c, retryAfter)
		}
	}
}
