// Package config loads and validates the gateway configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort      = 8080
	DefaultNamespace = "default"
	DefaultGroup     = "ark.mckinsey.com"
	DefaultVersion   = "v1alpha1"
	DefaultOwnedBy   = "ark"

	BackendHTTP   = "http"
	BackendMemory = "memory"
)

// Config is the root of the configuration file.
type Config struct {
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	Debug         bool   `yaml:"debug" json:"debug"`
	LoggingToFile bool   `yaml:"logging-to-file" json:"logging-to-file"`

	// Namespace is used when a request does not name one.
	Namespace string `yaml:"namespace" json:"namespace"`

	Backend BackendConfig `yaml:"backend" json:"backend"`
	Poll    PollConfig    `yaml:"poll" json:"poll"`
	Stream  StreamConfig  `yaml:"stream" json:"stream"`
	Models  ModelsConfig  `yaml:"models" json:"models"`
	Usage   UsageConfig   `yaml:"usage" json:"usage"`
}

// BackendConfig selects and tunes the resource store.
type BackendConfig struct {
	// Type is "http" for a Kubernetes-style resource API or "memory" for an
	// in-process store.
	Type    string `yaml:"type" json:"type"`
	BaseURL string `yaml:"base-url,omitempty" json:"base-url,omitempty"`
	Group   string `yaml:"group,omitempty" json:"group,omitempty"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Token is sent as a bearer token. TokenFile wins when both are set.
	Token     string `yaml:"token,omitempty" json:"token,omitempty"`
	TokenFile string `yaml:"token-file,omitempty" json:"token-file,omitempty"`

	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ProxyURL string        `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// RateLimit caps requests per second to the backend; 0 disables it.
	RateLimit float64 `yaml:"rate-limit,omitempty" json:"rate-limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// PollConfig bounds the completion poll loop.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MaxInterval time.Duration `yaml:"max-interval" json:"max-interval"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// StreamConfig tunes the upstream event-stream connection.
type StreamConfig struct {
	ConnectTimeout time.Duration `yaml:"connect-timeout" json:"connect-timeout"`
	// IdleTimeout closes a stalled upstream; 0 waits forever.
	IdleTimeout time.Duration `yaml:"idle-timeout" json:"idle-timeout"`
	WaitForJob  time.Duration `yaml:"wait-for-job" json:"wait-for-job"`
}

type ModelsConfig struct {
	OwnedBy string `yaml:"owned-by" json:"owned-by"`
}

// UsageConfig enables usage persistence when DSN is set.
type UsageConfig struct {
	DSN           string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	BatchSize     int    `yaml:"batch-size,omitempty" json:"batch-size,omitempty"`
	FlushInterval string `yaml:"flush-interval,omitempty" json:"flush-interval,omitempty"`
	RetentionDays int    `yaml:"retention-days,omitempty" json:"retention-days,omitempty"`
}

// NewDefaultConfig returns a configuration usable without any file.
func NewDefaultConfig() *Config {
	return &Config{
		Port:      DefaultPort,
		Namespace: DefaultNamespace,
		Backend: BackendConfig{
			Type:    BackendMemory,
			Group:   DefaultGroup,
			Version: DefaultVersion,
			Timeout: 30 * time.Second,
		},
		Poll: PollConfig{
			Interval:    time.Second,
			MaxInterval: 5 * time.Second,
			Timeout:     5 * time.Minute,
		},
		Stream: StreamConfig{
			ConnectTimeout: 10 * time.Second,
			WaitForJob:     30 * time.Second,
		},
		Models: ModelsConfig{OwnedBy: DefaultOwnedBy},
	}
}

// LoadConfig reads and validates the file at path.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional reads the file at path. When optional is true a missing
// file yields (nil, nil) so callers can fall back to NewDefaultConfig.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes a configuration document. ".json" and ".jsonc" documents may
// carry comments and trailing commas.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		data = std
	}

	cfg := NewDefaultConfig()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := NewDefaultConfig()
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}
	if c.Backend.Type == "" {
		c.Backend.Type = def.Backend.Type
	}
	if c.Backend.Group == "" {
		c.Backend.Group = def.Backend.Group
	}
	if c.Backend.Version == "" {
		c.Backend.Version = def.Backend.Version
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = def.Backend.Timeout
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = def.Poll.Interval
	}
	if c.Poll.MaxInterval < c.Poll.Interval {
		c.Poll.MaxInterval = c.Poll.Interval
	}
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = def.Poll.Timeout
	}
	if c.Stream.ConnectTimeout <= 0 {
		c.Stream.ConnectTimeout = def.Stream.ConnectTimeout
	}
	if c.Stream.WaitForJob <= 0 {
		c.Stream.WaitForJob = def.Stream.WaitForJob
	}
	if c.Models.OwnedBy == "" {
		c.Models.OwnedBy = def.Models.OwnedBy
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ValidationError{Field: "port", Message: fmt.Sprintf("out of range: %d", c.Port)}
	}
	switch c.Backend.Type {
	case BackendMemory:
	case BackendHTTP:
		if c.Backend.BaseURL == "" {
			return &ValidationError{Field: "backend.base-url", Message: "base-url is required for http backend"}
		}
	default:
		return &ValidationError{Field: "backend.type", Message: "unknown backend type " + c.Backend.Type}
	}
	if c.Backend.RateLimit < 0 {
		return &ValidationError{Field: "backend.rate-limit", Message: "must not be negative"}
	}
	if c.Stream.IdleTimeout < 0 {
		return &ValidationError{Field: "stream.idle-timeout", Message: "must not be negative"}
	}
	if c.Usage.FlushInterval != "" {
		if _, err := time.ParseDuration(c.Usage.FlushInterval); err != nil {
			return &ValidationError{Field: "usage.flush-interval", Message: err.Error()}
		}
	}
	if _, err := ParseDSN(c.Usage.DSN); err != nil {
		return &ValidationError{Field: "usage.dsn", Message: err.Error()}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ResolveToken returns the bearer token for the backend, reading TokenFile if set.
func (b BackendConfig) ResolveToken() (string, error) {
	if b.TokenFile == "" {
		return b.Token, nil
	}
	data, err := os.ReadFile(b.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}
