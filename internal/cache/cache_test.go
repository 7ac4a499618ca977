package cache

import (
	"testing"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
)

func newTestCache(maxEntries int) (*Cache, *time.Time) {
	c := New(maxEntries, time.Hour)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(10)

	c.Set("k1", "v1", 0)
	got, ok := c.Get("k1")
	if !ok || got.(string) != "v1" {
		t.Fatalf("expected v1, got %v (ok=%v)", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("absent key should miss")
	}
}

func TestLazyExpiry(t *testing.T) {
	c, clock := newTestCache(10)

	c.Set("k1", "v1", time.Minute)
	*clock = clock.Add(61 * time.Second)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("expired entry must be absent")
	}
	// The expired Get must have removed the entry physically too.
	c.mu.Lock()
	_, present := c.entries["k1"]
	c.mu.Unlock()
	if present {
		t.Error("expired entry should be removed on read")
	}
}

func TestInsertionOrderEviction(t *testing.T) {
	c, _ := newTestCache(2)

	c.Set("first", 1, 0)
	c.Set("second", 2, 0)
	// Touch "first" so access order differs from insertion order.
	c.Get("first")
	c.Set("third", 3, 0)

	if _, ok := c.Get("first"); ok {
		t.Error("oldest-inserted entry should have been evicted despite recent access")
	}
	if _, ok := c.Get("second"); !ok {
		t.Error("second entry should survive")
	}
	if _, ok := c.Get("third"); !ok {
		t.Error("new entry should be present")
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(2)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("a", 10, 0)

	if _, ok := c.Get("b"); !ok {
		t.Error("overwriting an existing key must not evict")
	}
	got, _ := c.Get("a")
	if got.(int) != 10 {
		t.Errorf("expected overwritten value 10, got %v", got)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(10)

	c.Set("k1", "v1", 0)
	if !c.Delete("k1") {
		t.Error("delete of present key should report true")
	}
	if c.Delete("k1") {
		t.Error("delete of absent key should report false")
	}

	c.Set("k2", "v2", 0)
	c.Clear()
	if s := c.Stats(); s.Size != 0 {
		t.Errorf("expected empty cache after clear, size=%d", s.Size)
	}
}

func TestKeyDeterministic(t *testing.T) {
	history := []models.ChatTurn{
		{Role: "user", Content: "图书馆开放时间"},
		{Role: "assistant", Content: "每天8:00-22:00"},
	}

	k1 := Key("奖学金申请条件", history)
	k2 := Key("奖学金申请条件", []models.ChatTurn{
		{Role: "user", Content: "图书馆开放时间"},
		{Role: "assistant", Content: "每天8:00-22:00"},
	})
	if k1 != k2 {
		t.Error("logically identical inputs must produce the same key")
	}

	if Key("奖学金申请条件", nil) == k1 {
		t.Error("history must participate in the key")
	}
	if Key("其他问题", history) == k1 {
		t.Error("question must participate in the key")
	}
}

func TestKeyUsesLastThreeTurns(t *testing.T) {
	long := []models.ChatTurn{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "turn2"},
		{Role: "user", Content: "turn3"},
		{Role: "assistant", Content: "turn4"},
	}
	if Key("q", long) != Key("q", long[1:]) {
		t.Error("only the last three turns should affect the key")
	}
	if Key("q", long) == Key("q", long[:3]) {
		t.Error("dropping a recent turn must change the key")
	}
}

func TestCleanupExpiredAndStats(t *testing.T) {
	c, clock := newTestCache(10)

	c.Set("short", 1, time.Minute)
	c.Set("long", 2, time.Hour)
	c.Get("long")
	c.Get("nope")

	*clock = clock.Add(2 * time.Minute)
	s := c.Stats()

	if s.RecentlyCleaned != 1 {
		t.Errorf("stats should clean 1 expired entry, cleaned %d", s.RecentlyCleaned)
	}
	if s.Size != 1 {
		t.Errorf("expected size 1 after cleanup, got %d", s.Size)
	}
	if s.HitCount != 1 || s.MissCount != 1 {
		t.Errorf("unexpected hit/miss counters: %+v", s)
	}
	if s.HitRate != 50 {
		t.Errorf("expected 50%% hit rate, got %v", s.HitRate)
	}
}
