package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter implements tiered token-bucket rate limiting: one global bucket,
// one bucket per client IP, and one per authenticated username. All buckets
// refill lazily on access and share a single capacity and rate.
type Limiter struct {
	mu sync.Mutex

	tokensPerSecond float64
	tokensPerMinute int
	burstLimit      float64
	retryAfter      time.Duration

	global      bucket
	ipBuckets   map[string]*bucket
	userBuckets map[string]*bucket

	totalRequests   int64
	limitedRequests int64

	now func() time.Time
}

// Decision is the outcome of one Allow call, carrying everything the HTTP
// layer needs for 429 bodies and observability headers.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Limit      int
	Remaining  int
}

func NewLimiter(tokensPerMinute, burstLimit int, retryAfter time.Duration) *Limiter {
	l := &Limiter{
		tokensPerSecond: float64(tokensPerMinute) / 60.0,
		tokensPerMinute: tokensPerMinute,
		burstLimit:      float64(burstLimit),
		retryAfter:      retryAfter,
		ipBuckets:       make(map[string]*bucket),
		userBuckets:     make(map[string]*bucket),
		now:             time.Now,
	}
	l.global = bucket{tokens: l.burstLimit, lastRefill: l.now()}
	return l
}

// Allow refills the global, IP and (when username is non-empty) user buckets,
// then admits the request only if every applicable bucket holds at least one
// token. Decrements happen after all checks pass: a rejected request never
// consumes from any tier.
func (l *Limiter) Allow(ip, username string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.totalRequests++

	l.refill(&l.global, now)
	ipBucket := l.getOrCreate(l.ipBuckets, ip, now)
	l.refill(ipBucket, now)

	var userBucket *bucket
	if username != "" {
		userBucket = l.getOrCreate(l.userBuckets, username, now)
		l.refill(userBucket, now)
	}

	if l.global.tokens < 1 {
		slog.Warn("Global rate limit triggered", "ip", ip)
		return l.deny()
	}
	if ipBucket.tokens < 1 {
		slog.Warn("IP rate limit triggered", "ip", ip)
		return l.deny()
	}
	if userBucket != nil && userBucket.tokens < 1 {
		slog.Warn("User rate limit triggered", "username", username, "ip", ip)
		return l.deny()
	}

	l.global.tokens--
	ipBucket.tokens--
	if userBucket != nil {
		userBucket.tokens--
	}

	return Decision{
		Allowed:   true,
		Limit:     l.tokensPerMinute,
		Remaining: int(l.global.tokens),
	}
}

func (l *Limiter) deny() Decision {
	l.limitedRequests++
	return Decision{
		Allowed:    false,
		RetryAfter: l.retryAfter,
		Limit:      l.tokensPerMinute,
		Remaining:  0,
	}
}

func (l *Limiter) getOrCreate(buckets map[string]*bucket, key string, now time.Time) *bucket {
	b, ok := buckets[key]
	if !ok {
		b = &bucket{tokens: l.burstLimit, lastRefill: now}
		buckets[key] = b
	}
	return b
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(l.burstLimit, b.tokens+elapsed*l.tokensPerSecond)
	b.lastRefill = now
}

// SweepIdle removes IP and user buckets untouched for longer than idleWindow.
// Purely a memory bound: a swept bucket comes back at full capacity on next
// access.
func (l *Limiter) SweepIdle(idleWindow time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleWindow)
	removed := 0
	for ip, b := range l.ipBuckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.ipBuckets, ip)
			removed++
		}
	}
	for user, b := range l.userBuckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.userBuckets, user)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Swept idle rate-limit buckets", "removed", removed)
	}
	return removed
}

// StartSweeper runs SweepIdle on a ticker until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, idleWindow time.Duration) {
	ticker := time.NewTicker(idleWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.SweepIdle(idleWindow)
		}
	}
}

type Stats struct {
	GlobalTokens    float64 `json:"global_tokens"`
	GlobalCapacity  int     `json:"global_capacity"`
	IPBucketCount   int     `json:"ip_buckets_count"`
	UserBucketCount int     `json:"user_buckets_count"`
	TokensPerMinute int     `json:"tokens_per_minute"`
	TotalRequests   int64   `json:"total_requests"`
	AllowedRequests int64   `json:"allowed_requests"`
	LimitedRequests int64   `json:"limited_requests"`
	LimitRate       float64 `json:"limit_rate"`
	RatePerSecond   float64 `json:"rate_per_second"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(&l.global, l.now())
	var limitRate float64
	if l.totalRequests > 0 {
		limitRate = float64(l.limitedRequests) / float64(l.totalRequests) * 100
	}
	return Stats{
		GlobalTokens:    l.global.tokens,
		GlobalCapacity:  int(l.burstLimit),
		IPBucketCount:   len(l.ipBuckets),
		UserBucketCount: len(l.userBuckets),
		TokensPerMinute: l.tokensPerMinute,
		TotalRequests:   l.totalRequests,
		AllowedRequests: l.totalRequests - l.limitedRequests,
		LimitedRequests: l.limitedRequests,
		LimitRate:       limitRate,
		RatePerSecond:   l.tokensPerSecond,
	}
}
