package usage

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/nghyane/query-gateway/internal/logging"
)

// Delivery modes of a chat completion.
const (
	ModePoll     = "poll"
	ModeStream   = "stream"
	ModeFallback = "fallback"
)

// Record describes one chat completion.
type Record struct {
	Namespace        string
	TargetKind       string
	TargetName       string
	Model            string
	Mode             string
	QueryName        string
	RequestedAt      time.Time
	Failed           bool
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Latency          time.Duration
}

// Recorder updates the counters and hands records to the backend when one
// is configured.
type Recorder struct {
	counters *Counters
	backend  Backend
	enabled  atomic.Bool
}

// NewRecorder accepts a nil backend; only counters are kept then.
func NewRecorder(backend Backend) *Recorder {
	r := &Recorder{counters: NewCounters(), backend: backend}
	r.enabled.Store(true)
	return r
}

// Open starts the backend named by cfg.DSN and seeds the counters from its
// history. An empty DSN yields a counters-only recorder.
func Open(cfg BackendConfig) (*Recorder, error) {
	if cfg.DSN == "" {
		return NewRecorder(nil), nil
	}
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Start(); err != nil {
		return nil, err
	}
	r := NewRecorder(backend)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stats, err := backend.QueryGlobalStats(ctx, time.Time{})
	if err != nil {
		log.Warnf("Failed to bootstrap usage counters from history: %v", err)
	} else if stats != nil {
		r.counters.Bootstrap(*stats)
		log.Infof("Bootstrapped usage counters: %d requests, %d tokens", stats.TotalRequests, stats.TotalTokens)
	}
	return r, nil
}

func (r *Recorder) SetEnabled(enabled bool) {
	if r != nil {
		r.enabled.Store(enabled)
	}
}

func (r *Recorder) Enabled() bool { return r != nil && r.enabled.Load() }

func (r *Recorder) Backend() Backend {
	if r == nil {
		return nil
	}
	return r.backend
}

func (r *Recorder) Record(rec Record) {
	if !r.Enabled() {
		return
	}
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = time.Now()
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	r.counters.Add(rec)
	if r.backend != nil {
		r.backend.Enqueue(rec)
	}
}

func (r *Recorder) Counters() CounterSnapshot {
	if r == nil {
		return CounterSnapshot{}
	}
	return r.counters.Snapshot()
}

// Snapshot returns the counters plus, with a backend, the breakdowns since
// the given time. Breakdown failures are logged and leave their fields empty.
func (r *Recorder) Snapshot(ctx context.Context, since time.Time) Snapshot {
	c := r.Counters()
	snap := Snapshot{
		TotalRequests: c.TotalRequests,
		SuccessCount:  c.SuccessCount,
		FailureCount:  c.FailureCount,
		StreamedCount: c.StreamedCount,
		TotalTokens:   c.TotalTokens,
	}
	if r == nil || r.backend == nil {
		return snap
	}
	if err := r.backend.Flush(ctx); err != nil {
		log.Warnf("usage flush before snapshot failed: %v", err)
	}

	if daily, err := r.backend.QueryDailyStats(ctx, since); err != nil {
		log.Warnf("usage daily stats: %v", err)
	} else {
		snap.RequestsByDay = make(map[string]int64, len(daily))
		snap.TokensByDay = make(map[string]int64, len(daily))
		for _, d := range daily {
			snap.RequestsByDay[d.Day] = d.Requests
			snap.TokensByDay[d.Day] = d.Tokens
		}
	}

	if hourly, err := r.backend.QueryHourlyStats(ctx, since); err != nil {
		log.Warnf("usage hourly stats: %v", err)
	} else {
		snap.RequestsByHour = make(map[string]int64, len(hourly))
		snap.TokensByHour = make(map[string]int64, len(hourly))
		for _, h := range hourly {
			key := strconv.Itoa(h.Hour)
			if h.Hour < 10 {
				key = "0" + key
			}
			snap.RequestsByHour[key] = h.Requests
			snap.TokensByHour[key] = h.Tokens
		}
	}

	if targets, err := r.backend.QueryTargetStats(ctx, since); err != nil {
		log.Warnf("usage target stats: %v", err)
	} else {
		snap.Targets = targets
	}
	return snap
}

// Close flushes and stops the backend.
func (r *Recorder) Close() error {
	if r == nil || r.backend == nil {
		return nil
	}
	return r.backend.Stop()
}
