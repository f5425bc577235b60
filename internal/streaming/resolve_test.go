package streaming

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *resource.MemoryStore, kind resource.Kind, obj *resource.Object) {
	t.Helper()
	_, err := store.Create(context.Background(), kind, "ns", obj)
	require.NoError(t, err)
}

func memory(name, annotation, address string) *resource.Object {
	obj := &resource.Object{Metadata: resource.Metadata{Name: name}}
	if annotation != "" {
		obj.SetAnnotation(resource.AnnotationMemoryEventStream, annotation)
	}
	if address != "" {
		obj.Status = []byte(`{"lastResolvedAddress":"` + address + `"}`)
	}
	return obj
}

func job(name, spec string) *resource.Object {
	obj := &resource.Object{Metadata: resource.Metadata{Name: name}}
	if spec != "" {
		obj.Spec = []byte(spec)
	}
	return obj
}

func TestResolve_Available(t *testing.T) {
	store := resource.NewMemoryStore()
	seed(t, store, resource.KindQuery, job("openai-query-1a2b3c4d", ""))
	seed(t, store, resource.KindMemory, memory("default", "true", "https://mem.example"))

	res := NewResolver(store, 30*time.Second).Resolve(context.Background(), "ns", "openai-query-1a2b3c4d")
	require.True(t, res.Available(), res.Reason)
	assert.Equal(t, "https://mem.example/stream/openai-query-1a2b3c4d?from-beginning=true&wait-for-query=30s", res.URL)
}

func TestResolve_UsesReferencedMemoryAndTrimsSlash(t *testing.T) {
	store := resource.NewMemoryStore()
	seed(t, store, resource.KindQuery, job("q", `{"memory":{"name":"chat"}}`))
	seed(t, store, resource.KindMemory, memory("default", "true", "http://wrong"))
	seed(t, store, resource.KindMemory, memory("chat", "true", "http://chat-mem:8080/"))

	res := NewResolver(store, 45*time.Second).Resolve(context.Background(), "ns", "q")
	assert.Equal(t, "http://chat-mem:8080/stream/q?from-beginning=true&wait-for-query=45s", res.URL)
}

func TestResolve_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		memory *resource.Object
		noJob  bool
	}{
		{"job missing", memory("default", "true", "http://mem"), true},
		{"memory missing", nil, false},
		{"annotation absent", memory("default", "", "http://mem"), false},
		{"annotation not true", memory("default", "yes", "http://mem"), false},
		{"annotation wrong case", memory("default", "True", "http://mem"), false},
		{"no address", memory("default", "true", ""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := resource.NewMemoryStore()
			if !tt.noJob {
				seed(t, store, resource.KindQuery, job("q", ""))
			}
			if tt.memory != nil {
				seed(t, store, resource.KindMemory, tt.memory)
			}
			res := NewResolver(store, 0).Resolve(context.Background(), "ns", "q")
			assert.False(t, res.Available())
			assert.Empty(t, res.URL)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

type panickingStore struct{ resource.Store }

func (panickingStore) Get(context.Context, resource.Kind, string, string) (*resource.Object, error) {
	panic("boom")
}

type failingStore struct{ resource.Store }

func (failingStore) Get(context.Context, resource.Kind, string, string) (*resource.Object, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_CollaboratorFailuresAreUnavailable(t *testing.T) {
	assert.False(t, NewResolver(panickingStore{}, 0).Resolve(context.Background(), "ns", "q").Available())
	assert.False(t, NewResolver(failingStore{}, 0).Resolve(context.Background(), "ns", "q").Available())
}

func TestResolveSession(t *testing.T) {
	store := resource.NewMemoryStore()
	seed(t, store, resource.KindMemory, memory("default", "true", "http://mem/"))
	resolver := NewResolver(store, 0)

	plain := job("plain", "")
	_, err := resolver.ResolveSession(context.Background(), "ns", plain)
	assert.ErrorIs(t, err, ErrStreamingNotEnabled)

	withSession := job("s", `{"sessionId":"sess-42"}`)
	withSession.SetAnnotation(resource.AnnotationStreamingEnabled, "true")
	session, err := resolver.ResolveSession(context.Background(), "ns", withSession)
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "sess-42", URL: "http://mem/stream/sess-42"}, session)

	byUID := job("u", "")
	byUID.Metadata.UID = "0b9f-uid"
	byUID.SetAnnotation(resource.AnnotationStreamingEnabled, "true")
	session, err = resolver.ResolveSession(context.Background(), "ns", byUID)
	require.NoError(t, err)
	assert.Equal(t, "http://mem/stream/0b9f-uid", session.URL)
}

func TestResolveSession_Unresolved(t *testing.T) {
	store := resource.NewMemoryStore()
	seed(t, store, resource.KindMemory, memory("empty", "true", ""))
	resolver := NewResolver(store, 0)

	for _, spec := range []string{`{"memory":{"name":"empty"}}`, `{"memory":{"name":"absent"}}`} {
		j := job("q", spec)
		j.Metadata.UID = "uid"
		j.SetAnnotation(resource.AnnotationStreamingEnabled, "true")
		_, err := resolver.ResolveSession(context.Background(), "ns", j)
		var unresolved *StreamAddressUnresolvedError
		require.ErrorAs(t, err, &unresolved, spec)
	}
}
