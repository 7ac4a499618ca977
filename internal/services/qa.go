package services

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/jxiee/campus-qa/internal/cache"
	"github.com/jxiee/campus-qa/internal/generate"
	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/retrieval"
)

const offlineAnswer = "抱歉，我暂时无法回答这个问题，请稍后再试或联系管理员。"

// degradedTTL keeps fallback answers cached briefly so a backend outage
// does not hammer retrieval, without pinning the fallback for hours.
const degradedTTL = 5 * time.Minute

// QAService runs the question pipeline: cache lookup, knowledge base
// retrieval, answer generation, then cache write-back. Retrieval and
// generation failures degrade rather than fail the request.
type QAService struct {
	cache     *cache.Cache
	retriever retrieval.Retriever
	generator generate.Generator
	history   *HistoryService
	metrics   *Metrics

	slots *semaphore.Weighted
	topK  int
}

func NewQAService(c *cache.Cache, r retrieval.Retriever, g generate.Generator, h *HistoryService, m *Metrics, workerSlots int64, topK int) *QAService {
	if workerSlots <= 0 {
		workerSlots = 1
	}
	return &QAService{
		cache:     c,
		retriever: r,
		generator: g,
		history:   h,
		metrics:   m,
		slots:     semaphore.NewWeighted(workerSlots),
		topK:      topK,
	}
}

// GeneratorConfigured reports whether real answer generation is available.
func (s *QAService) GeneratorConfigured() bool {
	return s.generator.Configured()
}

// Ask answers a question for the given user. The response always carries
// from_cache, is_real_time and the elapsed processing time.
func (s *QAService) Ask(ctx context.Context, username string, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	s.metrics.RecordRequest()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.metrics.RecordError()
		return nil, models.ErrEmptyQuestion
	}

	key := cache.Key(question, req.ChatHistory)
	if v, ok := s.cache.Get(key); ok {
		if cached, ok := v.(models.AskResponse); ok {
			s.metrics.RecordCacheHit()
			s.metrics.RecordSuccess()
			cached.FromCache = true
			cached.ProcessTime = time.Since(start).Seconds()
			s.history.Append(username, question, cached.Answer, cached.Sources, cached.IsRealTime)
			return &cached, nil
		}
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.metrics.RecordError()
		return nil, err
	}
	defer s.slots.Release(1)

	docs := s.search(ctx, question)
	answer, generated := s.generate(ctx, question, docs, req.ChatHistory)

	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Source != "" {
			sources = append(sources, d.Source)
		}
	}
	if len(sources) == 0 {
		sources = []string{"系统提示"}
	}

	resp := models.AskResponse{
		Answer:     answer,
		Sources:    sources,
		IsRealTime: generated,
		FromCache:  false,
	}

	ttl := ttlForQuestion(question)
	if !generated {
		ttl = degradedTTL
	}
	s.cache.Set(key, resp, ttl)

	s.metrics.RecordSuccess()
	resp.ProcessTime = time.Since(start).Seconds()
	s.history.Append(username, question, resp.Answer, resp.Sources, resp.IsRealTime)
	return &resp, nil
}

func (s *QAService) search(ctx context.Context, question string) []models.Document {
	docs, err := s.retriever.Search(ctx, question, s.topK)
	if err != nil {
		slog.Warn("Knowledge base search unavailable, answering without context", "error", err)
		return nil
	}
	s.metrics.RecordVectorSearch()
	return docs
}

func (s *QAService) generate(ctx context.Context, question string, docs []models.Document, history []models.ChatTurn) (string, bool) {
	if !s.generator.Configured() {
		return offlineAnswer, false
	}
	answer, err := s.generator.Generate(ctx, question, docs, history)
	if err != nil {
		slog.Error("Answer generation failed", "error", err)
		return offlineAnswer, false
	}
	return answer, true
}

// ttlForQuestion picks a cache TTL by question length. Short questions
// tend to ask for stable facts, very long ones go stale faster.
func ttlForQuestion(question string) time.Duration {
	switch n := utf8.RuneCountInString(question); {
	case n < 30:
		return 2 * time.Hour
	case n > 200:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}
