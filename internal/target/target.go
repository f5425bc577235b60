// Package target parses client-facing model identifiers such as
// "agent/weather" into execution targets.
package target

import (
	"fmt"
	"strings"

	"github.com/nghyane/query-gateway/internal/resource"
)

// Kind is the type of execution target.
type Kind string

const (
	KindAgent Kind = "agent"
	KindTeam  Kind = "team"
	KindModel Kind = "model"
	KindTool  Kind = "tool"
)

// Kinds lists every target kind in model listing order.
var Kinds = []Kind{KindAgent, KindTeam, KindModel, KindTool}

// ResourceKind is the resource collection backing targets of this kind.
func (k Kind) ResourceKind() resource.Kind {
	switch k {
	case KindAgent:
		return resource.KindAgent
	case KindTeam:
		return resource.KindTeam
	case KindModel:
		return resource.KindModel
	case KindTool:
		return resource.KindTool
	}
	return ""
}

func (k Kind) valid() bool {
	return k.ResourceKind() != ""
}

// Target is an immutable execution destination.
type Target struct {
	Kind Kind   `json:"type"`
	Name string `json:"name"`
}

// String renders the target back into "<kind>/<name>".
func (t Target) String() string {
	return string(t.Kind) + "/" + t.Name
}

// InvalidTargetError is returned for identifiers that do not name a known kind.
type InvalidTargetError struct {
	Value  string
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid model %q: %s", e.Value, e.Reason)
}

// Parse splits value on its first "/". The kind must match exactly; the
// name is kept verbatim and may itself contain "/".
func Parse(value string) (Target, error) {
	kind, name, ok := strings.Cut(value, "/")
	if !ok {
		return Target{}, &InvalidTargetError{Value: value, Reason: "expected <kind>/<name> with kind one of agent, team, model, tool"}
	}
	k := Kind(kind)
	if !k.valid() {
		return Target{}, &InvalidTargetError{Value: value, Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if name == "" {
		return Target{}, &InvalidTargetError{Value: value, Reason: "empty name"}
	}
	return Target{Kind: k, Name: name}, nil
}
