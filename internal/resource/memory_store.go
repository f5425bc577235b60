package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nghyane/query-gateway/internal/json"
)

type objectKey struct {
	kind      Kind
	namespace string
	name      string
}

// MemoryStore keeps resources in process. It assigns uid and
// creationTimestamp on create like the real API server does.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[objectKey]*Object
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[objectKey]*Object),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, namespace, name string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[objectKey{kind, namespace, name}]
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", kind, namespace, name, ErrNotFound)
	}
	return obj.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, kind Kind, namespace string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, 0)
	for key, obj := range s.objects {
		if key.kind == kind && key.namespace == namespace {
			out = append(out, *obj.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Name < out[j].Metadata.Name })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, kind Kind, namespace string, obj *Object) (*Object, error) {
	if obj == nil || obj.Metadata.Name == "" {
		return nil, &StatusError{Code: 422, Message: "metadata.name is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{kind, namespace, obj.Metadata.Name}
	if _, exists := s.objects[key]; exists {
		return nil, fmt.Errorf("%s %s/%s: %w", kind, namespace, obj.Metadata.Name, ErrConflict)
	}
	stored := obj.Clone()
	stored.Metadata.Namespace = namespace
	stored.Metadata.UID = uuid.NewString()
	stored.Metadata.ResourceVersion = "1"
	stored.Metadata.CreationTimestamp = s.now().UTC().Format(TimestampLayout)
	s.objects[key] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, kind Kind, namespace string, obj *Object) (*Object, error) {
	if obj == nil {
		return nil, &StatusError{Code: 422, Message: "object is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{kind, namespace, obj.Metadata.Name}
	current, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", kind, namespace, obj.Metadata.Name, ErrNotFound)
	}
	stored := obj.Clone()
	s.keepServerFields(stored, current)
	s.objects[key] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Patch(_ context.Context, kind Kind, namespace, name string, patch []byte) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{kind, namespace, name}
	current, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", kind, namespace, name, ErrNotFound)
	}
	doc, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	merged, err := MergePatch(doc, patch)
	if err != nil {
		return nil, &StatusError{Code: 400, Message: err.Error()}
	}
	var stored Object
	if err := json.Unmarshal(merged, &stored); err != nil {
		return nil, &StatusError{Code: 400, Message: err.Error()}
	}
	s.keepServerFields(&stored, current)
	s.objects[key] = &stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, namespace, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{kind, namespace, name}
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("%s %s/%s: %w", kind, namespace, name, ErrNotFound)
	}
	delete(s.objects, key)
	return nil
}

// keepServerFields carries identity fields across writes. Caller must hold s.mu.
func (s *MemoryStore) keepServerFields(next, current *Object) {
	next.Metadata.Name = current.Metadata.Name
	next.Metadata.Namespace = current.Metadata.Namespace
	next.Metadata.UID = current.Metadata.UID
	next.Metadata.CreationTimestamp = current.Metadata.CreationTimestamp
	next.Metadata.ResourceVersion = bumpVersion(current.Metadata.ResourceVersion)
}

func bumpVersion(v string) string {
	var n int
	_, _ = fmt.Sscanf(v, "%d", &n)
	return fmt.Sprintf("%d", n+1)
}
