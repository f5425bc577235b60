package usage

import "sync/atomic"

// Counters are lock-free totals updated on every chat completion. History
// and breakdowns come from the backend.
type Counters struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	failureCount  atomic.Int64
	streamedCount atomic.Int64
	totalTokens   atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

// Add folds one record into the totals.
func (c *Counters) Add(r Record) {
	if c == nil {
		return
	}
	c.totalRequests.Add(1)
	if r.Failed {
		c.failureCount.Add(1)
	} else {
		c.successCount.Add(1)
	}
	if r.Mode == ModeStream {
		c.streamedCount.Add(1)
	}
	c.totalTokens.Add(r.TotalTokens)
}

func (c *Counters) Snapshot() CounterSnapshot {
	if c == nil {
		return CounterSnapshot{}
	}
	return CounterSnapshot{
		TotalRequests: c.totalRequests.Load(),
		SuccessCount:  c.successCount.Load(),
		FailureCount:  c.failureCount.Load(),
		StreamedCount: c.streamedCount.Load(),
		TotalTokens:   c.totalTokens.Load(),
	}
}

// Bootstrap seeds the counters from persisted history at startup.
func (c *Counters) Bootstrap(stats AggregatedStats) {
	if c == nil {
		return
	}
	c.totalRequests.Store(stats.TotalRequests)
	c.successCount.Store(stats.SuccessCount)
	c.failureCount.Store(stats.FailureCount)
	c.streamedCount.Store(stats.StreamedCount)
	c.totalTokens.Store(stats.TotalTokens)
}

// CounterSnapshot holds an immutable point-in-time view of counter values.
type CounterSnapshot struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	FailureCount  int64 `json:"failure_count"`
	StreamedCount int64 `json:"streamed_count"`
	TotalTokens   int64 `json:"total_tokens"`
}
