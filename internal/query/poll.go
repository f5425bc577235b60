package query

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resource"
)

// PollConfig bounds Await.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Timeout     time.Duration
}

var DefaultPollConfig = PollConfig{
	Interval:    time.Second,
	MaxInterval: 5 * time.Second,
	Timeout:     5 * time.Minute,
}

// Poller waits for jobs to finish. Only non-terminal results are retried;
// an error from the store ends the wait immediately.
type Poller struct {
	store resource.Store
	cfg   atomic.Pointer[PollConfig]
}

func NewPoller(store resource.Store, cfg PollConfig) *Poller {
	p := &Poller{store: store}
	p.SetConfig(cfg)
	return p
}

// SetConfig swaps the bounds used by subsequent Await calls.
func (p *Poller) SetConfig(cfg PollConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig.Interval
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollConfig.Timeout
	}
	// The retry policy needs the delay strictly below the overall bound.
	if cfg.MaxInterval >= cfg.Timeout {
		cfg.MaxInterval = cfg.Timeout / 2
		if cfg.Interval > cfg.MaxInterval {
			cfg.Interval = cfg.MaxInterval
		}
	}
	p.cfg.Store(&cfg)
}

// Config returns the current bounds.
func (p *Poller) Config() PollConfig {
	return *p.cfg.Load()
}

func newPollPolicy(cfg PollConfig) retrypolicy.RetryPolicy[*resource.Object] {
	builder := retrypolicy.NewBuilder[*resource.Object]().
		HandleIf(func(obj *resource.Object, err error) bool {
			return err == nil && !PhaseOf(obj).Terminal()
		}).
		WithMaxRetries(-1).
		WithMaxDuration(cfg.Timeout).
		ReturnLastFailure()
	if cfg.MaxInterval > cfg.Interval {
		builder = builder.WithBackoff(cfg.Interval, cfg.MaxInterval)
	} else {
		builder = builder.WithDelay(cfg.Interval)
	}
	return builder.Build()
}

// Await fetches the job until it is terminal. A done job is returned as is;
// error and canceled jobs become *JobFailedError; running out of time is
// *PollTimeoutError, including when a fetch is still in flight at the bound.
func (p *Poller) Await(ctx context.Context, namespace, name string) (*resource.Object, error) {
	cfg := p.Config()
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var (
		attempts  atomic.Int32
		lastPhase atomic.Value
	)
	lastPhase.Store(PhasePending)
	obj, err := failsafe.With(newPollPolicy(cfg)).WithContext(pollCtx).Get(func() (*resource.Object, error) {
		attempts.Add(1)
		o, errGet := p.store.Get(pollCtx, resource.KindQuery, namespace, name)
		if errGet == nil {
			lastPhase.Store(PhaseOf(o))
		}
		return o, errGet
	})
	if err != nil {
		if ctx.Err() == nil && pollCtx.Err() != nil {
			return nil, &PollTimeoutError{Name: name, Timeout: cfg.Timeout, LastPhase: lastPhase.Load().(Phase)}
		}
		return nil, err
	}

	phase := PhaseOf(obj)
	log.Debugf("query %s/%s is %s after %d polls", namespace, name, phase, attempts.Load())
	switch {
	case !phase.Terminal():
		return nil, &PollTimeoutError{Name: name, Timeout: cfg.Timeout, LastPhase: phase}
	case phase.Failed():
		return nil, &JobFailedError{Name: name, Phase: phase, Detail: FailureDetail(obj)}
	}
	return obj, nil
}

// PhaseOf reads status.phase of a job.
func PhaseOf(obj *resource.Object) Phase {
	return ParsePhase(obj.StatusField("phase").String())
}

// FailureDetail explains why a job failed: status.message, else the first
// response content.
func FailureDetail(obj *resource.Object) string {
	if msg := obj.StatusField("message").String(); msg != "" {
		return msg
	}
	return obj.StatusField("responses.0.content").String()
}
