package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_YAMLOverlaysDefaults(t *testing.T) {
	doc := []byte(`
port: 9000
backend:
  type: http
  base-url: https://k8s.example
poll:
  interval: 250ms
  timeout: 2m
stream:
  idle-timeout: 3m
`)
	cfg, err := Parse(doc, ".yaml")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "default", cfg.Namespace)
	assert.Equal(t, BackendHTTP, cfg.Backend.Type)
	assert.Equal(t, DefaultGroup, cfg.Backend.Group)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 5*time.Second, cfg.Poll.MaxInterval)
	assert.Equal(t, 2*time.Minute, cfg.Poll.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Stream.ConnectTimeout)
	assert.Equal(t, 3*time.Minute, cfg.Stream.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Stream.WaitForJob)
	assert.Equal(t, "ark", cfg.Models.OwnedBy)
}

func TestParse_JSONCWithComments(t *testing.T) {
	doc := []byte(`{
  // local dev
  "port": 8181,
  "namespace": "team-a",
  "backend": {"type": "memory",},
}`)
	cfg, err := Parse(doc, ".jsonc")
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, "team-a", cfg.Namespace)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"http without base url", "backend:\n  type: http\n", "backend.base-url"},
		{"unknown backend", "backend:\n  type: etcd\n", "backend.type"},
		{"bad port", "port: 70000\n", "port"},
		{"bad flush interval", "usage:\n  flush-interval: soon\n", "usage.flush-interval"},
		{"bad dsn", "usage:\n  dsn: mysql://x\n", "usage.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".yaml")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoadConfigOptional_MissingFile(t *testing.T) {
	cfg, err := LoadConfigOptional(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestGenerateDefaultConfigYAML_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, GenerateDefaultConfigYAML(), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig().Poll, cfg.Poll)
	assert.Equal(t, NewDefaultConfig().Stream, cfg.Stream)
	assert.Equal(t, BackendMemory, cfg.Backend.Type)
}

func TestParseDSN(t *testing.T) {
	parsed, err := ParseDSN("")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	parsed, err = ParseDSN("sqlite://~/usage.db")
	require.NoError(t, err)
	assert.Equal(t, &ParsedDSN{Backend: "sqlite", Path: "~/usage.db"}, parsed)

	parsed, err = ParseDSN("postgresql://u:p@db:5432/usage")
	require.NoError(t, err)
	assert.Equal(t, "postgres", parsed.Backend)
	assert.Equal(t, "postgresql://u:p@db:5432/usage", parsed.URL)

	_, err = ParseDSN("sqlite://")
	assert.Error(t, err)
}

func TestResolveToken_PrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	tok, err := BackendConfig{Token: "inline", TokenFile: path}.ResolveToken()
	require.NoError(t, err)
	assert.Equal(t, "from-file", tok)

	tok, err = BackendConfig{Token: "inline"}.ResolveToken()
	require.NoError(t, err)
	assert.Equal(t, "inline", tok)
}
