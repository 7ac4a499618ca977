package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jxiee/campus-qa/internal/models"
)

type countingHistoryRepo struct {
	mu      sync.Mutex
	batches [][]*models.ChatHistoryRecord
}

func (c *countingHistoryRepo) AppendRecords(ctx context.Context, records []*models.ChatHistoryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]*models.ChatHistoryRecord, len(records))
	copy(batch, records)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *countingHistoryRepo) GetUserHistory(ctx context.Context, username string, limit, offset int) ([]*models.ChatHistoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.ChatHistoryRecord
	for _, b := range c.batches {
		for _, r := range b {
			if r.Username == username {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (c *countingHistoryRepo) CountUserHistory(ctx context.Context, username string) (int, error) {
	records, _ := c.GetUserHistory(ctx, username, 0, 0)
	return len(records), nil
}

func (c *countingHistoryRepo) Trim(ctx context.Context, keep int) error { return nil }

func (c *countingHistoryRepo) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHistoryFlushesOnSize(t *testing.T) {
	repo := &countingHistoryRepo{}
	s := NewHistoryService(repo, 3, time.Hour, 0)
	defer s.Close()

	s.Append("student1", "q1", "a1", nil, true)
	s.Append("student1", "q2", "a2", nil, true)
	if repo.batchCount() != 0 {
		t.Fatal("buffer flushed before reaching flush size")
	}

	s.Append("student1", "q3", "a3", nil, true)
	waitFor(t, func() bool { return repo.batchCount() == 1 }, "flush after reaching flush size")

	repo.mu.Lock()
	n := len(repo.batches[0])
	repo.mu.Unlock()
	if n != 3 {
		t.Errorf("batch size = %d, expected 3", n)
	}
}

func TestHistoryRecentFlushesBuffer(t *testing.T) {
	repo := &countingHistoryRepo{}
	s := NewHistoryService(repo, 100, time.Hour, 0)
	defer s.Close()

	s.Append("student1", "图书馆几点开门？", "8点", []string{"学生手册"}, true)
	s.Append("teacher1", "教室怎么预约？", "通过教务系统", nil, true)

	records, total, err := s.Recent(context.Background(), "student1", 10, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if total != 1 || len(records) != 1 {
		t.Fatalf("expected 1 record for student1, got %d (total %d)", len(records), total)
	}
	if records[0].Question != "图书馆几点开门？" {
		t.Errorf("unexpected record: %+v", records[0])
	}
	if records[0].ID == "" {
		t.Error("record should carry a generated id")
	}
}

func TestHistoryFlushesOnInterval(t *testing.T) {
	repo := &countingHistoryRepo{}
	s := NewHistoryService(repo, 100, 20*time.Millisecond, 0)
	defer s.Close()

	s.Append("student1", "q", "a", nil, false)
	waitFor(t, func() bool { return repo.batchCount() > 0 }, "interval flush")
}

func TestHistoryCloseFlushesRemaining(t *testing.T) {
	repo := &countingHistoryRepo{}
	s := NewHistoryService(repo, 100, time.Hour, 0)

	s.Append("student1", "q", "a", nil, false)
	s.Close()

	if repo.batchCount() != 1 {
		t.Fatal("close should flush buffered records")
	}
}
