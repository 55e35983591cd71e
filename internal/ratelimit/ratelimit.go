// Package ratelimit throttles callers with one token bucket per caller key.
package ratelimit

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter decides whether a caller may proceed.
type Limiter interface {
	Allow(key string) bool
}

// Unlimited lets every request through.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// PerKey keeps an independent token bucket for every key.
type PerKey struct {
	buckets *haxmap.Map[string, *bucket]
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

var (
	// WithIdleTimeout sets how long an unused bucket is kept before Sweep drops it.
	WithIdleTimeout = opts.ForName[PerKey, time.Duration]("idle")
	// WithClock replaces time.Now, for tests.
	WithClock = opts.ForName[PerKey, func() time.Time]("now")
)

// NewPerKey allows perSecond requests per second per key with the given burst.
func NewPerKey(perSecond float64, burst int, options ...opts.Option[PerKey]) (*PerKey, error) {
	if burst < 1 {
		burst = 1
	}
	l := &PerKey{
		buckets: haxmap.New[string, *bucket](),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
	if err := opts.Apply(l, options); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PerKey) Allow(key string) bool {
	now := l.now()
	b, _ := l.buckets.GetOrCompute(key, func() *bucket {
		return &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
	})
	b.lastSeen.Store(now.UnixNano())
	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets that have not been used for the idle timeout and returns
// how many were dropped. A dropped key starts again with a full bucket.
func (l *PerKey) Sweep() int {
	cutoff := l.now().Add(-l.idle).UnixNano()
	var stale []string
	l.buckets.ForEach(func(key string, b *bucket) bool {
		if b.lastSeen.Load() < cutoff {
			stale = append(stale, key)
		}
		return true
	})
	if len(stale) > 0 {
		l.buckets.Del(stale...)
	}
	return len(stale)
}

// Start sweeps idle buckets every interval until ctx is done.
func (l *PerKey) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// CallerKey identifies the caller by the X-User-ID header, falling back to the client address.
func CallerKey(c *gin.Context) string {
	if user := c.GetHeader("X-User-ID"); user != "" {
		return "user:" + user
	}
	return "ip:" + c.ClientIP()
}

// Middleware rejects requests over the limit with 429.
func Middleware(l Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	if key == nil {
		key = CallerKey
	}
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
