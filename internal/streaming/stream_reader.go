package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/nghyane/query-gateway/internal/logging"
)

// ErrIdleTimeout is returned by Read after an upstream that stopped sending
// data was cut off.
var ErrIdleTimeout = errors.New("upstream sent no data within the idle timeout")

// Bounds on how often the watchdog samples the last read time.
const (
	minIdleTick = 10 * time.Millisecond
	maxIdleTick = 30 * time.Second
)

type cutReason int32

const (
	notCut cutReason = iota
	cutDone
	cutIdle
)

// StreamReader guards an upstream body. The body is closed when ctx ends,
// when Close is called, or when no bytes arrive for the idle timeout. Reads
// after a ctx or Close cut report io.EOF; reads after an idle cut report
// ErrIdleTimeout.
type StreamReader struct {
	body     io.ReadCloser
	label    string
	idle     time.Duration
	lastRead atomic.Int64
	reason   atomic.Int32

	cutOnce  sync.Once
	closeErr error
	quit     chan struct{}
	quitOnce sync.Once
}

// NewStreamReader wraps body and starts its watchdog. idle 0 disables the
// idle cut.
func NewStreamReader(ctx context.Context, body io.ReadCloser, idle time.Duration, label string) *StreamReader {
	sr := &StreamReader{body: body, label: label, idle: idle, quit: make(chan struct{})}
	sr.lastRead.Store(time.Now().UnixNano())
	go sr.watch(ctx)
	return sr
}

func idleTick(idle time.Duration) time.Duration {
	return min(max(idle/4, minIdleTick), maxIdleTick)
}

func (sr *StreamReader) watch(ctx context.Context) {
	var tick <-chan time.Time
	if sr.idle > 0 {
		t := time.NewTicker(idleTick(sr.idle))
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			sr.cut(cutDone)
			return
		case <-sr.quit:
			return
		case <-tick:
			quiet := time.Since(time.Unix(0, sr.lastRead.Load()))
			if quiet <= sr.idle {
				continue
			}
			log.Warnf("%s: quiet for %v (limit %v), cutting upstream", sr.label, quiet.Round(time.Millisecond), sr.idle)
			sr.cut(cutIdle)
			return
		}
	}
}

// cut records why the body is going away and closes it. The first reason
// wins.
func (sr *StreamReader) cut(why cutReason) {
	sr.reason.CompareAndSwap(int32(notCut), int32(why))
	sr.cutOnce.Do(func() {
		sr.closeErr = sr.body.Close()
	})
}

func (sr *StreamReader) cutErr() error {
	switch cutReason(sr.reason.Load()) {
	case cutIdle:
		return ErrIdleTimeout
	case cutDone:
		return io.EOF
	}
	return nil
}

func (sr *StreamReader) Read(p []byte) (int, error) {
	if err := sr.cutErr(); err != nil {
		return 0, err
	}
	n, err := sr.body.Read(p)
	if n > 0 {
		sr.lastRead.Store(time.Now().UnixNano())
	}
	if err != nil {
		if cerr := sr.cutErr(); cerr != nil {
			return n, cerr
		}
	}
	return n, err
}

// Closed reports whether the body has been cut for any reason.
func (sr *StreamReader) Closed() bool {
	return cutReason(sr.reason.Load()) != notCut
}

// Close stops the watchdog and closes the body. Safe to call more than once.
func (sr *StreamReader) Close() error {
	sr.cut(cutDone)
	sr.quitOnce.Do(func() { close(sr.quit) })
	return sr.closeErr
}
