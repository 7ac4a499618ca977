package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(tokensPerMinute, burst int) (*Limiter, *time.Time) {
	l := NewLimiter(tokensPerMinute, burst, 10*time.Second)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	l.global.lastRefill = clock
	return l, &clock
}

func TestBurstExhaustion(t *testing.T) {
	l, _ := newTestLimiter(60, 5)

	for i := 0; i < 5; i++ {
		if d := l.Allow("1.2.3.4", ""); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d := l.Allow("1.2.3.4", "")
	if d.Allowed {
		t.Error("request beyond burst limit should be rejected")
	}
	if d.RetryAfter != 10*time.Second {
		t.Errorf("expected retry-after of 10s, got %v", d.RetryAfter)
	}
	if d.Limit != 60 {
		t.Errorf("expected limit 60, got %d", d.Limit)
	}
}

func TestRefillReadmits(t *testing.T) {
	l, clock := newTestLimiter(60, 3)

	for i := 0; i < 3; i++ {
		l.Allow("1.2.3.4", "")
	}
	if l.Allow("1.2.3.4", "").Allowed {
		t.Fatal("bucket should be empty")
	}

	// 60 tokens/min is one token per second.
	*clock = clock.Add(1100 * time.Millisecond)
	if !l.Allow("1.2.3.4", "").Allowed {
		t.Error("at least one request should succeed after refill interval")
	}
}

func TestRefillCappedAtCapacity(t *testing.T) {
	l, clock := newTestLimiter(600, 4)

	*clock = clock.Add(time.Hour)
	for i := 0; i < 4; i++ {
		if !l.Allow("1.2.3.4", "").Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4", "").Allowed {
		t.Error("refill must not exceed capacity")
	}
}

func TestRejectionLeavesBucketsUntouched(t *testing.T) {
	l, _ := newTestLimiter(60, 5)

	// Drain the global pool through a first client.
	for i := 0; i < 5; i++ {
		if !l.Allow("9.9.9.9", "alice").Allowed {
			t.Fatalf("warm-up request %d should be allowed", i+1)
		}
	}

	d := l.Allow("1.2.3.4", "alice")
	if d.Allowed {
		t.Fatal("global pool is empty, request should be rejected")
	}

	// The rejected request must not have consumed from any tier: the fresh
	// IP bucket stays at full capacity and no bucket goes negative.
	if got := l.ipBuckets["1.2.3.4"].tokens; got != 5 {
		t.Errorf("ip bucket decremented on rejected request: %v tokens", got)
	}
	if got := l.userBuckets["alice"].tokens; got != 0 {
		t.Errorf("user bucket changed on rejected request: %v tokens", got)
	}
	if got := l.global.tokens; got != 0 {
		t.Errorf("global bucket changed on rejected request: %v tokens", got)
	}
}

func TestSweepIdleRemovesStaleBuckets(t *testing.T) {
	l, clock := newTestLimiter(60, 5)

	l.Allow("1.2.3.4", "alice")
	l.Allow("5.6.7.8", "")

	*clock = clock.Add(10 * time.Minute)
	l.Allow("5.6.7.8", "") // refresh one bucket

	removed := l.SweepIdle(5 * time.Minute)
	if removed != 2 {
		t.Errorf("expected 2 swept buckets (stale ip + user), got %d", removed)
	}
	if _, ok := l.ipBuckets["5.6.7.8"]; !ok {
		t.Error("recently used bucket must survive the sweep")
	}

	// A swept client starts over at full capacity.
	if !l.Allow("1.2.3.4", "alice").Allowed {
		t.Error("swept bucket should be recreated with full capacity")
	}
}

func TestStats(t *testing.T) {
	l, _ := newTestLimiter(60, 2)

	l.Allow("1.2.3.4", "")
	l.Allow("1.2.3.4", "")
	l.Allow("1.2.3.4", "")

	s := l.Stats()
	if s.TotalRequests != 3 || s.LimitedRequests != 1 || s.AllowedRequests != 2 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.IPBucketCount != 1 {
		t.Errorf("expected 1 ip bucket, got %d", s.IPBucketCount)
	}
}
