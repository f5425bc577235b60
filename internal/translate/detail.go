package translate

import (
	"fmt"

	"github.com/nghyane/query-gateway/internal/json"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/tidwall/gjson"
)

// StreamingInfo tells a client where to attach to a job's raw event stream.
type StreamingInfo struct {
	Enabled   bool   `json:"enabled"`
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// QueryDetail is the full view of a job returned by the query routes.
type QueryDetail struct {
	Name              string          `json:"name"`
	Namespace         string          `json:"namespace"`
	Input             json.RawMessage `json:"input,omitempty"`
	Memory            json.RawMessage `json:"memory,omitempty"`
	Parameters        json.RawMessage `json:"parameters,omitempty"`
	Selector          json.RawMessage `json:"selector,omitempty"`
	ServiceAccount    string          `json:"serviceAccount,omitempty"`
	SessionID         string          `json:"sessionId,omitempty"`
	Streaming         *StreamingInfo  `json:"streaming,omitempty"`
	Targets           json.RawMessage `json:"targets,omitempty"`
	Timeout           string          `json:"timeout,omitempty"`
	TTL               string          `json:"ttl,omitempty"`
	Cancel            bool            `json:"cancel,omitempty"`
	Evaluators        json.RawMessage `json:"evaluators,omitempty"`
	EvaluatorSelector json.RawMessage `json:"evaluatorSelector,omitempty"`
	Status            json.RawMessage `json:"status,omitempty"`
}

// QuerySummary is one item of the query listing.
type QuerySummary struct {
	Name              string          `json:"name"`
	Namespace         string          `json:"namespace"`
	Input             json.RawMessage `json:"input,omitempty"`
	Memory            json.RawMessage `json:"memory,omitempty"`
	SessionID         string          `json:"sessionId,omitempty"`
	Status            json.RawMessage `json:"status,omitempty"`
	CreationTimestamp string          `json:"creationTimestamp,omitempty"`
}

// QueryList is the listing response body.
type QueryList struct {
	Items []QuerySummary `json:"items"`
	Count int            `json:"count"`
}

// RawStreamPath is the gateway route serving a job's raw event stream.
func RawStreamPath(namespace, name string) string {
	return fmt.Sprintf("/api/v1/namespaces/%s/queries/%s/stream", namespace, name)
}

func raw(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// NewQueryDetail projects a job. Streaming info is present only for jobs
// carrying the streaming annotation.
func NewQueryDetail(job *resource.Object) QueryDetail {
	namespace := job.Metadata.Namespace
	d := QueryDetail{
		Name:              job.Metadata.Name,
		Namespace:         namespace,
		Input:             raw(job.SpecField("input")),
		Memory:            raw(job.SpecField("memory")),
		Parameters:        raw(job.SpecField("parameters")),
		Selector:          raw(job.SpecField("selector")),
		ServiceAccount:    job.SpecField("serviceAccount").String(),
		SessionID:         job.SpecField("sessionId").String(),
		Targets:           raw(job.SpecField("targets")),
		Timeout:           job.SpecField("timeout").String(),
		TTL:               job.SpecField("ttl").String(),
		Cancel:            job.SpecField("cancel").Bool(),
		Evaluators:        raw(job.SpecField("evaluators")),
		EvaluatorSelector: raw(job.SpecField("evaluatorSelector")),
	}
	if len(job.Status) > 0 {
		d.Status = job.Status
	}
	if job.Annotation(resource.AnnotationStreamingEnabled) == "true" {
		d.Streaming = &StreamingInfo{
			Enabled:   true,
			URL:       RawStreamPath(namespace, job.Metadata.Name),
			SessionID: streaming.SessionID(job),
		}
	}
	return d
}

// NewQueryList projects a listing in store order.
func NewQueryList(jobs []resource.Object) QueryList {
	items := make([]QuerySummary, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		s := QuerySummary{
			Name:              job.Metadata.Name,
			Namespace:         job.Metadata.Namespace,
			Input:             raw(job.SpecField("input")),
			Memory:            raw(job.SpecField("memory")),
			SessionID:         job.SpecField("sessionId").String(),
			CreationTimestamp: job.Metadata.CreationTimestamp,
		}
		if len(job.Status) > 0 {
			s.Status = job.Status
		}
		items = append(items, s)
	}
	return QueryList{Items: items, Count: len(items)}
}
