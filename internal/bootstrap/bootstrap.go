// Package bootstrap loads the configuration every CLI command starts from.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nghyane/query-gateway/internal/config"
	log "github.com/nghyane/query-gateway/internal/logging"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "$XDG_CONFIG_HOME/query-gateway/config.yaml"

// Result contains the result of bootstrapping the application.
type Result struct {
	Config         *config.Config
	ConfigFilePath string
}

// Bootstrap loads .env, the config file at configPath and the environment
// overrides. A missing file yields the defaults; the default location is
// created on first run.
func Bootstrap(configPath string) (*Result, error) {
	if errLoad := godotenv.Load(".env"); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = DefaultConfigPath
	}
	isDefault := configPath == DefaultConfigPath
	resolved, err := ResolvePath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if isDefault {
		if _, statErr := os.Stat(resolved); errors.Is(statErr, os.ErrNotExist) {
			autoInitConfig(resolved)
		}
	}

	cfg, err := config.LoadConfigOptional(resolved, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	ApplyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, ConfigFilePath: resolved}, nil
}

// ResolvePath expands ~ and environment variables. An unset XDG_CONFIG_HOME
// falls back to ~/.config.
func ResolvePath(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	expanded := os.Expand(path, func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if key == "XDG_CONFIG_HOME" && home != "" {
			return filepath.Join(home, ".config")
		}
		return ""
	})
	if strings.HasPrefix(expanded, "~/") || expanded == "~" {
		if home == "" {
			return "", errors.New("home directory unknown")
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}
	return filepath.Abs(expanded)
}

// ApplyEnvOverrides applies environment variable overrides for container
// deployments.
func ApplyEnvOverrides(cfg *config.Config) {
	if port, ok := LookupEnvInt(EnvPrefix + "PORT"); ok {
		cfg.Port = port
		log.Infof("Port overridden by env: %d", port)
	}

	if debug, ok := LookupEnvBool(EnvPrefix + "DEBUG"); ok {
		cfg.Debug = debug
		log.Infof("Debug overridden by env: %v", debug)
	}

	if toFile, ok := LookupEnvBool(EnvPrefix + "LOGGING_TO_FILE"); ok {
		cfg.LoggingToFile = toFile
		log.Infof("Logging to file overridden by env: %v", toFile)
	}

	if ns, ok := LookupEnv(EnvPrefix + "NAMESPACE"); ok {
		cfg.Namespace = ns
		log.Infof("Namespace overridden by env: %s", ns)
	}

	if typ, ok := LookupEnv(EnvPrefix + "BACKEND_TYPE"); ok {
		cfg.Backend.Type = typ
		log.Infof("Backend type overridden by env: %s", typ)
	}

	if base, ok := LookupEnv(EnvPrefix + "BACKEND_URL"); ok {
		cfg.Backend.BaseURL = base
		if _, typed := LookupEnv(EnvPrefix + "BACKEND_TYPE"); !typed {
			cfg.Backend.Type = config.BackendHTTP
		}
		log.Infof("Backend URL overridden by env")
	}

	if token, ok := LookupEnv(EnvPrefix + "BACKEND_TOKEN"); ok {
		cfg.Backend.Token = token
		log.Infof("Backend token overridden by env")
	}

	if tokenFile, ok := LookupEnv(EnvPrefix + "BACKEND_TOKEN_FILE"); ok {
		cfg.Backend.TokenFile = tokenFile
		log.Infof("Backend token file overridden by env: %s", tokenFile)
	}

	if proxyURL, ok := LookupEnv(EnvPrefix + "PROXY_URL"); ok {
		cfg.Backend.ProxyURL = proxyURL
		log.Infof("Proxy URL overridden by env")
	}

	if timeout, ok := LookupEnvDuration(EnvPrefix + "POLL_TIMEOUT"); ok {
		cfg.Poll.Timeout = timeout
		log.Infof("Poll timeout overridden by env: %s", timeout)
	}

	if dsn, ok := LookupEnv(EnvPrefix + "USAGE_DSN"); ok {
		cfg.Usage.DSN = dsn
		log.Infof("Usage DSN overridden by env")
	}

	if days, ok := LookupEnvInt(EnvPrefix + "USAGE_RETENTION_DAYS"); ok {
		cfg.Usage.RetentionDays = days
		log.Infof("Usage retention days overridden by env: %d", days)
	}
}

// autoInitConfig silently creates config on first run
func autoInitConfig(configPath string) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return
	}
	if err := os.WriteFile(configPath, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		return
	}
	fmt.Printf("First run: created config at %s\n", configPath)
}
