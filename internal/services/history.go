package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jxiee/campus-qa/internal/models"
	"github.com/jxiee/campus-qa/internal/repository"
)

// HistoryService buffers chat records in memory and flushes them to the
// repository in batches, either when the buffer reaches flushSize or on
// every flushInterval tick. Appends never block the request path.
type HistoryService struct {
	repo          repository.HistoryRepository
	flushSize     int
	flushInterval time.Duration
	maxRecords    int

	mu     sync.Mutex
	buffer []*models.ChatHistoryRecord

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewHistoryService(repo repository.HistoryRepository, flushSize int, flushInterval time.Duration, maxRecords int) *HistoryService {
	s := &HistoryService{
		repo:          repo,
		flushSize:     flushSize,
		flushInterval: flushInterval,
		maxRecords:    maxRecords,
		buffer:        make([]*models.ChatHistoryRecord, 0, flushSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Append queues a record for persistence. The record gets a ulid so
// retries of the same batch stay idempotent at the store layer.
func (s *HistoryService) Append(username, question, answer string, sources []string, isRealTime bool) {
	rec := &models.ChatHistoryRecord{
		ID:         ulid.Make().String(),
		Username:   username,
		Question:   question,
		Answer:     answer,
		Sources:    sources,
		IsRealTime: isRealTime,
		Timestamp:  time.Now(),
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, rec)
	full := len(s.buffer) >= s.flushSize
	s.mu.Unlock()

	if full {
		// Flush off the request path; Append stays cheap for callers.
		go s.Flush(context.Background())
	}
}

// Flush writes all buffered records to the repository. Failures are
// logged and the batch is dropped; chat history is best-effort.
func (s *HistoryService) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]*models.ChatHistoryRecord, 0, s.flushSize)
	s.mu.Unlock()

	if err := s.repo.AppendRecords(ctx, batch); err != nil {
		slog.Error("History flush failed", "error", err, "records", len(batch))
		return
	}

	if s.maxRecords > 0 {
		if err := s.repo.Trim(ctx, s.maxRecords); err != nil {
			slog.Warn("History trim failed", "error", err)
		}
	}
}

// Recent returns the newest records for a user plus the user's total count.
func (s *HistoryService) Recent(ctx context.Context, username string, limit, offset int) ([]*models.ChatHistoryRecord, int, error) {
	// Flush first so a user sees their own just-asked question.
	s.Flush(ctx)

	records, err := s.repo.GetUserHistory(ctx, username, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountUserHistory(ctx, username)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Close stops the flush loop and writes out any remaining records.
func (s *HistoryService) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.Flush(context.Background())
	})
}

func (s *HistoryService) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.stop:
			return
		}
	}
}
