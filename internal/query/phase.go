// Package query submits chat input as query jobs and waits for them to
// reach a terminal phase.
package query

import "strings"

// Phase is the lifecycle state of a query job.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseRunning    Phase = "running"
	PhaseEvaluating Phase = "evaluating"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
	PhaseCanceled   Phase = "canceled"
)

// ParsePhase normalizes a status.phase value. Empty means pending.
func ParsePhase(s string) Phase {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PhasePending
	}
	if s == "cancelled" {
		return PhaseCanceled
	}
	return Phase(s)
}

// Terminal reports whether no further transitions will happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseError, PhaseCanceled:
		return true
	}
	return false
}

// Failed reports a terminal phase without a usable result.
func (p Phase) Failed() bool {
	return p == PhaseError || p == PhaseCanceled
}
