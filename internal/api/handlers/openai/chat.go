package openai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/query"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/nghyane/query-gateway/internal/target"
	"github.com/nghyane/query-gateway/internal/translate"
	"github.com/nghyane/query-gateway/internal/usage"
)

// ChatCompletionRequest is the accepted subset of the chat completion body.
// Temperature and MaxTokens are accepted for compatibility and not forwarded.
type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []query.Message `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

const defaultTemperature = 1.0

func (r *ChatCompletionRequest) validate() error {
	if r.Model == "" {
		return handlers.BadRequest("model is required")
	}
	if r.Messages == nil {
		return handlers.BadRequest("messages is required")
	}
	if r.Temperature == nil {
		t := defaultTemperature
		r.Temperature = &t
	}
	return nil
}

// ChatCompletions submits the conversation as a query job. With stream=true
// and a streaming-capable memory the memory's event stream is relayed as
// SSE; otherwise the job is polled to completion and returned whole.
func (h *Handler) ChatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := handlers.DecodeJSON(c, &req); err != nil {
		handlers.RespondOpenAIError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		handlers.RespondOpenAIError(c, err)
		return
	}
	log.Infof("Received chat completion request for model: %s", req.Model)

	tgt, err := target.Parse(req.Model)
	if err != nil {
		h.observe(target.Target{}, usage.ModePoll, "invalid_target")
		handlers.RespondOpenAIError(c, err)
		return
	}

	ctx := c.Request.Context()
	ns := h.namespace()
	started := time.Now()
	rec := usage.Record{
		Namespace:   ns,
		TargetKind:  string(tgt.Kind),
		TargetName:  tgt.Name,
		Model:       req.Model,
		Mode:        usage.ModePoll,
		RequestedAt: started,
	}

	name, err := h.submitter.Submit(ctx, query.Submission{
		Namespace: ns,
		Input:     query.FlattenMessages(req.Messages),
		Target:    tgt,
		Stream:    req.Stream,
	})
	if err != nil {
		h.finish(rec, started, true, "submit_failed")
		handlers.RespondOpenAIError(c, err)
		return
	}
	rec.QueryName = name
	log.Infof("Created query %s for %s", name, tgt)

	if req.Stream {
		res := h.resolver.Resolve(ctx, ns, name)
		if res.Available() {
			log.Infof("Streaming available for query: %s", name)
			rec.Mode = usage.ModeStream
			h.relayStream(c, res.URL, rec, started)
			return
		}
		log.Infof("Streaming not available for %s (%s), falling back to complete response", name, res.Reason)
		if h.metrics != nil {
			h.metrics.ObserveFallback(fallbackReason(res.Reason))
		}
		rec.Mode = usage.ModeFallback
	}

	job, err := h.poller.Await(ctx, ns, name)
	if h.metrics != nil {
		h.metrics.ObservePoll(pollOutcome(job, err), time.Since(started))
	}
	if err != nil {
		h.finish(rec, started, true, "poll_failed")
		handlers.RespondOpenAIError(c, pollError(name, err))
		return
	}

	completion := translate.ChatCompletion(job, req.Model)
	rec.PromptTokens = int64(completion.Usage.PromptTokens)
	rec.CompletionTokens = int64(completion.Usage.CompletionTokens)
	rec.TotalTokens = int64(completion.Usage.TotalTokens)
	h.finish(rec, started, false, "ok")
	handlers.RespondJSON(c, http.StatusOK, completion)
}

// relayStream commits an SSE response and forwards the upstream events. An
// upstream that cannot be opened ends the response without a body.
func (h *Handler) relayStream(c *gin.Context, url string, rec usage.Record, started time.Time) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	up, err := h.relay.Open(c.Request.Context(), url)
	if err != nil {
		log.WithError(err).Warnf("stream for %s unavailable, closing response", rec.QueryName)
		h.finish(rec, started, true, "relay_failed")
		return
	}
	defer up.Close()

	if h.metrics != nil {
		done := h.metrics.RelayStarted("sse")
		defer done()
	}
	events, err := up.Forward(c.Writer, streaming.FramingSSE)
	if h.metrics != nil {
		h.metrics.ObserveRelayed("sse", events)
	}
	switch {
	case errors.Is(err, streaming.ErrIdleTimeout):
		log.WithError(err).Warnf("stream for %s cut after %d events", rec.QueryName, events)
		h.finish(rec, started, true, "idle_timeout")
		return
	case err != nil && c.Request.Context().Err() == nil:
		log.WithError(err).Debugf("stream for %s ended after %d events", rec.QueryName, events)
	}
	h.finish(rec, started, false, "ok")
}

func (h *Handler) finish(rec usage.Record, started time.Time, failed bool, outcome string) {
	rec.Failed = failed
	rec.Latency = time.Since(started)
	if h.recorder != nil {
		h.recorder.Record(rec)
	}
	h.observe(target.Target{Kind: target.Kind(rec.TargetKind)}, rec.Mode, outcome)
}

func (h *Handler) observe(t target.Target, mode, outcome string) {
	if h.metrics == nil {
		return
	}
	kind := string(t.Kind)
	if kind == "" {
		kind = "unknown"
	}
	h.metrics.ObserveRequest(kind, mode, outcome)
}

// pollError keeps the poll taxonomy and turns any other failure, such as
// the job disappearing mid-poll, into a plain server error.
func pollError(name string, err error) error {
	var (
		timeout *query.PollTimeoutError
		failed  *query.JobFailedError
	)
	if errors.As(err, &timeout) || errors.As(err, &failed) {
		return err
	}
	if errors.Is(err, resource.ErrNotFound) || errors.Is(err, resource.ErrConflict) {
		return fmt.Errorf("poll query %s: %v", name, err)
	}
	return err
}

func pollOutcome(job *resource.Object, err error) string {
	var (
		timeout *query.PollTimeoutError
		failed  *query.JobFailedError
	)
	switch {
	case err == nil:
		return string(query.PhaseOf(job))
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &failed):
		return string(failed.Phase)
	default:
		return "fetch_error"
	}
}

// fallbackReason keeps the metric label set small.
func fallbackReason(reason string) string {
	switch {
	case reason == "":
		return "unknown"
	case strings.HasPrefix(reason, "fetch query"):
		return "query_unavailable"
	case strings.HasPrefix(reason, "fetch memory"):
		return "memory_unavailable"
	default:
		return "not_capable"
	}
}
