package services

import (
	"sync/atomic"
	"time"
)

// Metrics tracks request counters for the performance stats endpoint.
// All fields use atomic operations so handlers and the orchestrator can
// update them without locking.
type Metrics struct {
	startTime time.Time

	totalRequests  int64
	successCount   int64
	errorCount     int64
	cacheHits      int64
	vectorSearches int64
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordRequest()      { atomic.AddInt64(&m.totalRequests, 1) }
func (m *Metrics) RecordSuccess()      { atomic.AddInt64(&m.successCount, 1) }
func (m *Metrics) RecordError()        { atomic.AddInt64(&m.errorCount, 1) }
func (m *Metrics) RecordCacheHit()     { atomic.AddInt64(&m.cacheHits, 1) }
func (m *Metrics) RecordVectorSearch() { atomic.AddInt64(&m.vectorSearches, 1) }

// Snapshot returns the current counters with derived rates.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := atomic.LoadInt64(&m.totalRequests)
	success := atomic.LoadInt64(&m.successCount)
	errs := atomic.LoadInt64(&m.errorCount)
	hits := atomic.LoadInt64(&m.cacheHits)
	searches := atomic.LoadInt64(&m.vectorSearches)

	var successRate, cacheHitRate float64
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
		cacheHitRate = float64(hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"total_requests":  total,
		"success_count":   success,
		"error_count":     errs,
		"cache_hits":      hits,
		"vector_searches": searches,
		"success_rate":    successRate,
		"cache_hit_rate":  cacheHitRate,
		"uptime_seconds":  time.Since(m.startTime).Seconds(),
	}
}

// ResetRetrievalCounters zeroes the counters tied to cached content.
// Clearing the cache calls this so hit rates restart from the flush.
func (m *Metrics) ResetRetrievalCounters() {
	atomic.StoreInt64(&m.cacheHits, 0)
	atomic.StoreInt64(&m.vectorSearches, 0)
}
