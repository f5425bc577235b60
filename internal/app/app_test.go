package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nghyane/query-gateway/internal/config"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(config.NewDefaultConfig())
	require.NoError(t, err)
	_, ok := a.Store.(*resource.MemoryStore)
	assert.True(t, ok)

	rr := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNew_HTTPBackend(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("secret\n"), 0o600))

	cfg := config.NewDefaultConfig()
	cfg.Backend.Type = config.BackendHTTP
	cfg.Backend.BaseURL = "https://k8s.example"
	cfg.Backend.TokenFile = tokenFile
	cfg.Usage.DSN = "sqlite://" + filepath.Join(dir, "usage.db")

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Recorder.Close() })
	_, ok := a.Store.(*resource.HTTPStore)
	assert.True(t, ok)
	assert.NotNil(t, a.Recorder.Backend())
}

func TestNew_MissingTokenFile(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Backend.Type = config.BackendHTTP
	cfg.Backend.BaseURL = "https://k8s.example"
	cfg.Backend.TokenFile = filepath.Join(t.TempDir(), "absent")

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token file")
}

func TestReload(t *testing.T) {
	a, err := New(config.NewDefaultConfig())
	require.NoError(t, err)

	next := config.NewDefaultConfig()
	next.Poll.Timeout = 42 * time.Second
	next.Namespace = "other"
	a.Reload(next)

	assert.Equal(t, 42*time.Second, a.Poller.Config().Timeout)
	assert.Equal(t, "other", a.Live.Get().Namespace)
	assert.Same(t, next, a.Server.Config())
}
