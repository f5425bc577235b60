package query

import (
	"fmt"
	"time"
)

// SubmissionError wraps a failed job create.
type SubmissionError struct {
	Name string
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit query %s: %v", e.Name, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollTimeoutError means the job did not reach a terminal phase in time.
type PollTimeoutError struct {
	Name      string
	Timeout   time.Duration
	LastPhase Phase
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("query %s still %s after %s", e.Name, e.LastPhase, e.Timeout)
}

// JobFailedError is a job that ended in error or canceled.
type JobFailedError struct {
	Name   string
	Phase  Phase
	Detail string
}

func (e *JobFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("query %s ended %s", e.Name, e.Phase)
	}
	return fmt.Sprintf("query %s ended %s: %s", e.Name, e.Phase, e.Detail)
}
