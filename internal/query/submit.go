package query

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nghyane/query-gateway/internal/json"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/target"
)

// NamePrefix starts every job created from the chat endpoint.
const NamePrefix = "openai-query-"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FlattenMessages renders messages as "role: content" lines.
func FlattenMessages(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// Submission is the input of one job.
type Submission struct {
	Namespace string
	Input     string
	Target    target.Target
	// Stream marks the job so the memory service publishes its events.
	Stream bool
}

type jobSpec struct {
	Input   string          `json:"input"`
	Targets []target.Target `json:"targets"`
}

// Submitter creates query jobs.
type Submitter struct {
	store   resource.Store
	newName func() string
}

func NewSubmitter(store resource.Store) *Submitter {
	return &Submitter{store: store, newName: NewJobName}
}

// NewJobName returns NamePrefix plus eight hex characters of a random UUID.
func NewJobName() string {
	id := uuid.New()
	return NamePrefix + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Submit creates the job and returns its name. Create failures, including a
// name collision, come back as *SubmissionError and are not retried.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (string, error) {
	name := s.newName()
	spec, err := json.Marshal(jobSpec{Input: sub.Input, Targets: []target.Target{sub.Target}})
	if err != nil {
		return "", &SubmissionError{Name: name, Err: err}
	}
	obj := &resource.Object{
		Metadata: resource.Metadata{Name: name, Namespace: sub.Namespace},
		Spec:     spec,
	}
	if sub.Stream {
		obj.SetAnnotation(resource.AnnotationStreamingEnabled, "true")
	}

	if _, err := s.store.Create(ctx, resource.KindQuery, sub.Namespace, obj); err != nil {
		return "", &SubmissionError{Name: name, Err: err}
	}
	log.Debugf("query %s/%s submitted for %s (stream=%v)", sub.Namespace, name, sub.Target, sub.Stream)
	return name, nil
}
