package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/models"
)

type stubRetriever struct {
	docs []models.Document
	err  error
}

func (s *stubRetriever) Search(ctx context.Context, query string, topK int) ([]models.Document, error) {
	return s.docs, s.err
}

type stubGenerator struct {
	answer     string
	err        error
	configured bool
	calls      int
}

func (s *stubGenerator) Generate(ctx context.Context, question string, docs []models.Document, history []models.ChatTurn) (string, error) {
	s.calls++
	return s.answer, s.err
}

func (s *stubGenerator) Configured() bool { return s.configured }

type memoryHistoryRepo struct {
	records []*models.ChatHistoryRecord
}

func (m *memoryHistoryRepo) AppendRecords(ctx context.Context, records []*models.ChatHistoryRecord) error {
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryHistoryRepo) GetUserHistory(ctx context.Context, username string, limit, offset int) ([]*models.ChatHistoryRecord, error) {
	var out []*models.ChatHistoryRecord
	for _, r := range m.records {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryHistoryRepo) CountUserHistory(ctx context.Context, username string) (int, error) {
	n := 0
	for _, r := range m.records {
		if r.Username == username {
			n++
		}
	}
	return n, nil
}

func (m *memoryHistoryRepo) Trim(ctx context.Context, keep int) error { return nil }

func newTestQA(r *stubRetriever, g *stubGenerator) (*QAService, *HistoryService) {
	h := NewHistoryService(&memoryHistoryRepo{}, 100, time.Hour, 0)
	qa := NewQAService(cache.New(100, time.Hour), r, g, h, NewMetrics(), 4, 3)
	return qa, h
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	qa, h := newTestQA(&stubRetriever{}, &stubGenerator{configured: true})
	defer h.Close()

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: q})
		if !errors.Is(err, models.ErrEmptyQuestion) {
			t.Errorf("question %q: expected ErrEmptyQuestion, got %v", q, err)
		}
	}
}

func TestAskCachesGeneratedAnswer(t *testing.T) {
	gen := &stubGenerator{answer: "图书馆开放时间为8:00-22:00", configured: true}
	ret := &stubRetriever{docs: []models.Document{{Content: "图书馆规定", Source: "学生手册"}}}
	qa, h := newTestQA(ret, gen)
	defer h.Close()

	req := models.AskRequest{Question: "图书馆几点开门？"}

	first, err := qa.Ask(context.Background(), "student1", req)
	if err != nil {
		t.Fatalf("first ask: %v", err)
	}
	if first.FromCache {
		t.Error("first answer should not come from cache")
	}
	if !first.IsRealTime {
		t.Error("generated answer should be marked real-time")
	}
	if first.Sources[0] != "学生手册" {
		t.Errorf("expected retrieved source, got %v", first.Sources)
	}

	second, err := qa.Ask(context.Background(), "student1", req)
	if err != nil {
		t.Fatalf("second ask: %v", err)
	}
	if !second.FromCache {
		t.Error("second answer should come from cache")
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer mismatch: %q vs %q", second.Answer, first.Answer)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, expected 1", gen.calls)
	}
}

func TestAskDegradesWhenGeneratorFails(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model timeout"), configured: true}
	qa, h := newTestQA(&stubRetriever{}, gen)
	defer h.Close()

	resp, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: "食堂在哪里？"})
	if err != nil {
		t.Fatalf("ask should degrade, got error: %v", err)
	}
	if resp.IsRealTime {
		t.Error("degraded answer should not be marked real-time")
	}
	if !strings.Contains(resp.Answer, "抱歉") {
		t.Errorf("expected fallback answer, got %q", resp.Answer)
	}

	// The fallback is cached too, so a backend outage does not turn every
	// repeat question into a fresh generation attempt.
	again, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: "食堂在哪里？"})
	if err != nil {
		t.Fatalf("second ask: %v", err)
	}
	if !again.FromCache {
		t.Error("fallback answer should be served from cache on repeat")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, expected 1", gen.calls)
	}
}

func TestFallbackAnswerStoredInCache(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model timeout"), configured: true}
	qa, h := newTestQA(&stubRetriever{}, gen)
	defer h.Close()

	if _, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: "食堂在哪里？"}); err != nil {
		t.Fatalf("ask: %v", err)
	}

	key := cache.Key("食堂在哪里？", nil)
	v, ok := qa.cache.Get(key)
	if !ok {
		t.Fatal("fallback answer should be in the cache")
	}
	resp, ok := v.(models.AskResponse)
	if !ok || !strings.Contains(resp.Answer, "抱歉") {
		t.Fatalf("unexpected cached value: %#v", v)
	}
}

func TestAskDegradesWhenRetrievalFails(t *testing.T) {
	gen := &stubGenerator{answer: "可以在教务系统查询课表。", configured: true}
	ret := &stubRetriever{err: errors.New("nats: no responders")}
	qa, h := newTestQA(ret, gen)
	defer h.Close()

	resp, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: "怎么查课表？"})
	if err != nil {
		t.Fatalf("ask should degrade, got error: %v", err)
	}
	if resp.Sources[0] != "系统提示" {
		t.Errorf("expected placeholder source, got %v", resp.Sources)
	}
	if !resp.IsRealTime {
		t.Error("generation still ran, answer should be real-time")
	}
}

func TestAskWithoutConfiguredGenerator(t *testing.T) {
	qa, h := newTestQA(&stubRetriever{}, &stubGenerator{configured: false})
	defer h.Close()

	resp, err := qa.Ask(context.Background(), "student1", models.AskRequest{Question: "学校地址是什么？"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.IsRealTime || resp.FromCache {
		t.Errorf("offline answer flags wrong: real_time=%v from_cache=%v", resp.IsRealTime, resp.FromCache)
	}
}

func TestTTLForQuestion(t *testing.T) {
	short := strings.Repeat("短", 10)
	long := strings.Repeat("长", 250)
	mid := strings.Repeat("中", 100)

	if got := ttlForQuestion(short); got != 2*time.Hour {
		t.Errorf("short question ttl = %v, expected 2h", got)
	}
	if got := ttlForQuestion(long); got != 30*time.Minute {
		t.Errorf("long question ttl = %v, expected 30m", got)
	}
	if got := ttlForQuestion(mid); got != time.Hour {
		t.Errorf("medium question ttl = %v, expected 1h", got)
	}
}
