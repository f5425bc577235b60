// Package streaming discovers whether a job's memory service can stream its
// events and relays that stream to clients.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resource"
)

// DefaultMemoryName is used when a job does not reference a memory.
const DefaultMemoryName = "default"

// DefaultWaitForJob is how long the stream service waits for a job to appear.
const DefaultWaitForJob = 30 * time.Second

// Resolution is the outcome of Resolve. Streaming is available only when URL
// is set; Reason says why it is not.
type Resolution struct {
	URL    string
	Reason string
}

func (r Resolution) Available() bool { return r.URL != "" }

func unavailable(format string, args ...any) Resolution {
	return Resolution{Reason: fmt.Sprintf(format, args...)}
}

// ErrStreamingNotEnabled means the job was not created with streaming on.
var ErrStreamingNotEnabled = errors.New("streaming is not enabled for this query")

// StreamAddressUnresolvedError means the job's memory has no usable address.
type StreamAddressUnresolvedError struct {
	Memory string
	Err    error
}

func (e *StreamAddressUnresolvedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memory %q has no stream address: %v", e.Memory, e.Err)
	}
	return fmt.Sprintf("memory %q has no stream address", e.Memory)
}

func (e *StreamAddressUnresolvedError) Unwrap() error { return e.Err }

// Session is a resolved raw stream.
type Session struct {
	ID  string
	URL string
}

// Resolver maps jobs to stream URLs. Nothing is cached: every call reads the
// job and its memory again.
type Resolver struct {
	store      resource.Store
	waitForJob atomic.Int64
}

func NewResolver(store resource.Store, waitForJob time.Duration) *Resolver {
	r := &Resolver{store: store}
	r.SetWaitForJob(waitForJob)
	return r
}

// SetWaitForJob changes the wait-for-query window put on stream URLs.
func (r *Resolver) SetWaitForJob(d time.Duration) {
	if d <= 0 {
		d = DefaultWaitForJob
	}
	r.waitForJob.Store(int64(d))
}

// Resolve returns the stream URL for a job, or an unavailable Resolution.
// Any failure along the way, including a panic, counts as unavailable.
func (r *Resolver) Resolve(ctx context.Context, namespace, jobName string) (res Resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("stream resolution for %s/%s panicked: %v", namespace, jobName, rec)
			res = unavailable("resolution failed")
		}
	}()

	job, err := r.store.Get(ctx, resource.KindQuery, namespace, jobName)
	if err != nil {
		return unavailable("fetch query: %v", err)
	}
	memoryName := MemoryName(job)
	memory, err := r.store.Get(ctx, resource.KindMemory, namespace, memoryName)
	if err != nil {
		return unavailable("fetch memory %s: %v", memoryName, err)
	}
	if memory.Annotation(resource.AnnotationMemoryEventStream) != "true" {
		return unavailable("memory %s does not stream events", memoryName)
	}
	address := ResolvedAddress(memory)
	if address == "" {
		return unavailable("memory %s has no resolved address", memoryName)
	}

	wait := time.Duration(r.waitForJob.Load())
	return Resolution{URL: JobStreamURL(address, jobName, wait)}
}

// ResolveSession returns the raw stream of an existing job. Unlike Resolve it
// reports why streaming is impossible.
func (r *Resolver) ResolveSession(ctx context.Context, namespace string, job *resource.Object) (Session, error) {
	if job.Annotation(resource.AnnotationStreamingEnabled) != "true" {
		return Session{}, ErrStreamingNotEnabled
	}
	memoryName := MemoryName(job)
	memory, err := r.store.Get(ctx, resource.KindMemory, namespace, memoryName)
	if err != nil {
		return Session{}, &StreamAddressUnresolvedError{Memory: memoryName, Err: err}
	}
	address := ResolvedAddress(memory)
	if address == "" {
		return Session{}, &StreamAddressUnresolvedError{Memory: memoryName}
	}
	id := SessionID(job)
	if id == "" {
		return Session{}, &StreamAddressUnresolvedError{Memory: memoryName, Err: errors.New("query has no session id or uid")}
	}
	return Session{ID: id, URL: strings.TrimRight(address, "/") + "/stream/" + url.PathEscape(id)}, nil
}

// MemoryName is spec.memory.name of a job, or DefaultMemoryName.
func MemoryName(job *resource.Object) string {
	if name := job.SpecField("memory.name").String(); name != "" {
		return name
	}
	return DefaultMemoryName
}

// ResolvedAddress is status.lastResolvedAddress of a memory.
func ResolvedAddress(memory *resource.Object) string {
	return strings.TrimSpace(memory.StatusField("lastResolvedAddress").String())
}

// SessionID is spec.sessionId of a job, falling back to metadata.uid.
func SessionID(job *resource.Object) string {
	if id := job.SpecField("sessionId").String(); id != "" {
		return id
	}
	return job.Metadata.UID
}

// JobStreamURL builds the stream URL of a job on the memory service.
func JobStreamURL(address, jobName string, wait time.Duration) string {
	return fmt.Sprintf("%s/stream/%s?from-beginning=true&wait-for-query=%ds",
		strings.TrimRight(address, "/"), url.PathEscape(jobName), int(wait/time.Second))
}
