// Package resource is the client side of the backend resource API: typed
// access to namespaced query, memory, agent, team, model and tool objects.
package resource

import (
	"github.com/nghyane/query-gateway/internal/json"
	"github.com/tidwall/gjson"
)

// Kind is the plural resource name used in API paths.
type Kind string

const (
	KindQuery  Kind = "queries"
	KindMemory Kind = "memories"
	KindAgent  Kind = "agents"
	KindTeam   Kind = "teams"
	KindModel  Kind = "models"
	KindTool   Kind = "tools"
)

const (
	// AnnotationStreamingEnabled marks a query whose events should be streamed.
	AnnotationStreamingEnabled = "ark.mckinsey.com/streaming-enabled"
	// AnnotationMemoryEventStream marks a memory that exposes a live event stream.
	AnnotationMemoryEventStream = "ark.mckinsey.com/memory-event-stream-enabled"

	// TimestampLayout is the wire format of metadata.creationTimestamp.
	TimestampLayout = "2006-01-02T15:04:05Z"
)

type Metadata struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace,omitempty"`
	UID               string            `json:"uid,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
	CreationTimestamp string            `json:"creationTimestamp,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// Object is a resource document. Spec and Status are kept raw; callers read
// the fields they need with SpecField and StatusField.
type Object struct {
	APIVersion string          `json:"apiVersion,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Metadata   Metadata        `json:"metadata"`
	Spec       json.RawMessage `json:"spec,omitempty"`
	Status     json.RawMessage `json:"status,omitempty"`
}

// Annotation returns the annotation value or "".
func (o *Object) Annotation(key string) string {
	if o == nil || o.Metadata.Annotations == nil {
		return ""
	}
	return o.Metadata.Annotations[key]
}

// SetAnnotation sets key, allocating the map when needed.
func (o *Object) SetAnnotation(key, value string) {
	if o.Metadata.Annotations == nil {
		o.Metadata.Annotations = make(map[string]string)
	}
	o.Metadata.Annotations[key] = value
}

// SpecField reads a gjson path from the spec.
func (o *Object) SpecField(path string) gjson.Result {
	if o == nil || len(o.Spec) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(o.Spec, path)
}

// StatusField reads a gjson path from the status.
func (o *Object) StatusField(path string) gjson.Result {
	if o == nil || len(o.Status) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(o.Status, path)
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := *o
	out.Metadata.Labels = cloneMap(o.Metadata.Labels)
	out.Metadata.Annotations = cloneMap(o.Metadata.Annotations)
	if o.Spec != nil {
		out.Spec = append(json.RawMessage(nil), o.Spec...)
	}
	if o.Status != nil {
		out.Status = append(json.RawMessage(nil), o.Status...)
	}
	return &out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
