package usage

import (
	"context"
	"sync"
	"time"

	log "github.com/nghyane/query-gateway/internal/logging"
)

const (
	defaultBatchSize         = 100
	defaultFlushInterval     = 5 * time.Second
	defaultRetentionDays     = 30
	defaultChannelBufferSize = 1000
	cleanupInterval          = 24 * time.Hour
)

// writeQueue batches records for a backend. The backend supplies the batch
// writer and the retention cleanup; the queue owns the goroutines.
type writeQueue struct {
	records       chan Record
	batchSize     int
	flushInterval time.Duration
	retentionDays int

	write   func(ctx context.Context, batch []Record) error
	cleanup func(ctx context.Context, before time.Time) (int64, error)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWriteQueue(cfg BackendConfig) *writeQueue {
	q := &writeQueue{
		records:       make(chan Record, defaultChannelBufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		retentionDays: cfg.RetentionDays,
		stopChan:      make(chan struct{}),
	}
	if q.batchSize <= 0 {
		q.batchSize = defaultBatchSize
	}
	if q.flushInterval <= 0 {
		q.flushInterval = defaultFlushInterval
	}
	if q.retentionDays <= 0 {
		q.retentionDays = defaultRetentionDays
	}
	return q
}

func (q *writeQueue) start() {
	q.wg.Add(2)
	go q.writeLoop()
	go q.cleanupLoop()
}

// stop drains pending records and waits for the workers. Safe to call
// more than once and without start.
func (q *writeQueue) stop() {
	q.stopOnce.Do(func() {
		close(q.stopChan)
		q.wg.Wait()
	})
}

func (q *writeQueue) enqueue(record Record) {
	select {
	case q.records <- record:
	default:
		log.Warnf("Usage persistence queue full, dropping record for %s/%s", record.TargetKind, record.TargetName)
	}
}

// flush drains the channel synchronously.
func (q *writeQueue) flush(ctx context.Context) error {
	batch := make([]Record, 0, q.batchSize)
	for {
		select {
		case record := <-q.records:
			batch = append(batch, record)
			if len(batch) >= q.batchSize {
				if err := q.write(ctx, batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				return q.write(ctx, batch)
			}
			return nil
		}
	}
}

func (q *writeQueue) writeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, q.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := q.write(ctx, batch); err != nil {
			log.Errorf("Failed to write usage batch: %v", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case record := <-q.records:
			batch = append(batch, record)
			if len(batch) >= q.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-q.stopChan:
			for {
				select {
				case record := <-q.records:
					batch = append(batch, record)
					if len(batch) >= q.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (q *writeQueue) cleanupLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -q.retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			deleted, err := q.cleanup(ctx, cutoff)
			cancel()
			if err != nil {
				log.Errorf("Failed to cleanup old usage records: %v", err)
			} else if deleted > 0 {
				log.Infof("Cleaned up %d usage records older than %d days", deleted, q.retentionDays)
			}
		case <-q.stopChan:
			return
		}
	}
}
