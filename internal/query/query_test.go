package query

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPoll = PollConfig{Interval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Timeout: 2 * time.Second}

func TestFlattenMessages(t *testing.T) {
	got := FlattenMessages([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	assert.Equal(t, "system: be brief\nuser: hello", got)
	assert.Equal(t, "", FlattenMessages(nil))
}

func TestNewJobName(t *testing.T) {
	re := regexp.MustCompile(`^openai-query-[0-9a-f]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		name := NewJobName()
		assert.Regexp(t, re, name)
		seen[name] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, PhasePending, ParsePhase(""))
	assert.Equal(t, PhaseDone, ParsePhase("Done"))
	assert.Equal(t, PhaseCanceled, ParsePhase("cancelled"))
	assert.False(t, PhaseEvaluating.Terminal())
	assert.False(t, PhaseRunning.Terminal())
	for _, p := range []Phase{PhaseDone, PhaseError, PhaseCanceled} {
		assert.True(t, p.Terminal(), string(p))
	}
}

func TestSubmitter_CreatesJob(t *testing.T) {
	store := resource.NewMemoryStore()
	sub := NewSubmitter(store)

	name, err := sub.Submit(context.Background(), Submission{
		Namespace: "ns",
		Input:     "user: hi",
		Target:    target.Target{Kind: target.KindAgent, Name: "weather"},
		Stream:    true,
	})
	require.NoError(t, err)

	obj, err := store.Get(context.Background(), resource.KindQuery, "ns", name)
	require.NoError(t, err)
	assert.Equal(t, "user: hi", obj.SpecField("input").String())
	assert.Equal(t, "agent", obj.SpecField("targets.0.type").String())
	assert.Equal(t, "weather", obj.SpecField("targets.0.name").String())
	assert.Equal(t, int64(1), obj.SpecField("targets.#").Int())
	assert.Equal(t, "true", obj.Annotation(resource.AnnotationStreamingEnabled))
}

func TestSubmitter_NoAnnotationWithoutStream(t *testing.T) {
	store := resource.NewMemoryStore()
	name, err := NewSubmitter(store).Submit(context.Background(), Submission{
		Namespace: "ns",
		Target:    target.Target{Kind: target.KindModel, Name: "m"},
	})
	require.NoError(t, err)
	obj, err := store.Get(context.Background(), resource.KindQuery, "ns", name)
	require.NoError(t, err)
	assert.Empty(t, obj.Metadata.Annotations)
}

func TestSubmitter_CollisionIsSubmissionError(t *testing.T) {
	store := resource.NewMemoryStore()
	sub := NewSubmitter(store)
	sub.newName = func() string { return "openai-query-deadbeef" }

	_, err := sub.Submit(context.Background(), Submission{Namespace: "ns", Target: target.Target{Kind: target.KindAgent, Name: "a"}})
	require.NoError(t, err)

	_, err = sub.Submit(context.Background(), Submission{Namespace: "ns", Target: target.Target{Kind: target.KindAgent, Name: "a"}})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, resource.ErrConflict)
}

// scriptedStore answers Get with a fixed sequence of phases.
type scriptedStore struct {
	resource.Store
	phases []string
	calls  atomic.Int32
	err    error
}

func (s *scriptedStore) Get(_ context.Context, _ resource.Kind, _, name string) (*resource.Object, error) {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return nil, s.err
	}
	if n >= len(s.phases) {
		n = len(s.phases) - 1
	}
	status := `{"phase":"` + s.phases[n] + `","responses":[{"content":"sunny"}]}`
	return &resource.Object{Metadata: resource.Metadata{Name: name}, Status: []byte(status)}, nil
}

func TestPoller_WaitsForDone(t *testing.T) {
	store := &scriptedStore{phases: []string{"", "pending", "running", "evaluating", "done"}}
	obj, err := NewPoller(store, fastPoll).Await(context.Background(), "ns", "q")
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, PhaseOf(obj))
	assert.Equal(t, int32(5), store.calls.Load())
}

func TestPoller_JobFailure(t *testing.T) {
	for _, phase := range []string{"error", "canceled"} {
		t.Run(phase, func(t *testing.T) {
			store := &scriptedStore{phases: []string{"running", phase}}
			_, err := NewPoller(store, fastPoll).Await(context.Background(), "ns", "q")
			var failed *JobFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, Phase(phase), failed.Phase)
			assert.Equal(t, "sunny", failed.Detail)
		})
	}
}

func TestPoller_TimeoutIsDistinct(t *testing.T) {
	store := &scriptedStore{phases: []string{"running"}}
	cfg := PollConfig{Interval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, Timeout: 60 * time.Millisecond}
	_, err := NewPoller(store, cfg).Await(context.Background(), "ns", "q")

	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, PhaseRunning, timeout.LastPhase)
	var failed *JobFailedError
	assert.False(t, errors.As(err, &failed))
	assert.Greater(t, store.calls.Load(), int32(1))
}

func TestPoller_StoreErrorsAreNotRetried(t *testing.T) {
	store := &scriptedStore{phases: []string{"running"}, err: resource.ErrNotFound}
	_, err := NewPoller(store, fastPoll).Await(context.Background(), "ns", "q")
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestPoller_HonorsContext(t *testing.T) {
	store := &scriptedStore{phases: []string{"running"}}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	slow := PollConfig{Interval: 10 * time.Millisecond, MaxInterval: 20 * time.Millisecond, Timeout: time.Minute}

	start := time.Now()
	_, err := NewPoller(store, slow).Await(ctx, "ns", "q")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// stallingStore reports running once, then blocks every later fetch until
// its context ends.
type stallingStore struct {
	resource.Store
	calls atomic.Int32
}

func (s *stallingStore) Get(ctx context.Context, _ resource.Kind, _, name string) (*resource.Object, error) {
	if s.calls.Add(1) == 1 {
		return &resource.Object{Metadata: resource.Metadata{Name: name}, Status: []byte(`{"phase":"running"}`)}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPoller_TimeoutBoundsInFlightFetch(t *testing.T) {
	store := &stallingStore{}
	cfg := PollConfig{Interval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond, Timeout: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := NewPoller(store, cfg).Await(ctx, "ns", "q")
	assert.Less(t, time.Since(start), time.Second)

	var timeout *PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, PhaseRunning, timeout.LastPhase)
	assert.Equal(t, 100*time.Millisecond, timeout.Timeout)
}

func TestPoller_CallerCancelIsNotTimeout(t *testing.T) {
	store := &stallingStore{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	cfg := PollConfig{Interval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond, Timeout: time.Minute}

	_, err := NewPoller(store, cfg).Await(ctx, "ns", "q")
	require.Error(t, err)
	var timeout *PollTimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestFailureDetail_PrefersMessage(t *testing.T) {
	obj := &resource.Object{Status: []byte(`{"phase":"error","message":"agent crashed","responses":[{"content":"partial"}]}`)}
	assert.Equal(t, "agent crashed", FailureDetail(obj))
}

func TestPoller_SetConfigClamps(t *testing.T) {
	p := NewPoller(resource.NewMemoryStore(), PollConfig{Interval: time.Second, MaxInterval: time.Minute, Timeout: 10 * time.Second})
	cfg := p.Config()
	assert.Less(t, cfg.MaxInterval, cfg.Timeout)
	assert.LessOrEqual(t, cfg.Interval, cfg.MaxInterval)
}
