// Package app assembles the gateway from its configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nghyane/query-gateway/internal/api"
	"github.com/nghyane/query-gateway/internal/api/handlers/openai"
	"github.com/nghyane/query-gateway/internal/api/handlers/queries"
	"github.com/nghyane/query-gateway/internal/config"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/metrics"
	"github.com/nghyane/query-gateway/internal/query"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/nghyane/query-gateway/internal/usage"
	"go.uber.org/dig"
)

// App holds the long-lived components. Reload pushes a new configuration
// into each of them.
type App struct {
	dig.In

	Live     *config.Live
	Store    resource.Store
	Poller   *query.Poller
	Resolver *streaming.Resolver
	Relay    *streaming.Relay
	Recorder *usage.Recorder
	Metrics  *metrics.Metrics
	Server   *api.Server
}

// BuildContainer registers every constructor. Tests may Decorate entries
// before calling Invoke.
func BuildContainer(cfg *config.Config) (*dig.Container, error) {
	c := dig.New()
	providers := []any{
		func() *config.Live { return config.NewLive(cfg) },
		NewStore,
		metrics.New,
		NewRecorder,
		query.NewSubmitter,
		NewPoller,
		NewResolver,
		NewRelay,
		NewOpenAIHandler,
		queries.NewHandler,
		NewServer,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("register component: %w", err)
		}
	}
	return c, nil
}

// New builds the container and resolves the application from it.
func New(cfg *config.Config) (*App, error) {
	c, err := BuildContainer(cfg)
	if err != nil {
		return nil, err
	}
	var app *App
	if err := c.Invoke(func(a App) { app = &a }); err != nil {
		return nil, fmt.Errorf("build application: %w", dig.RootCause(err))
	}
	return app, nil
}

// NewStore selects the resource store named by backend.type.
func NewStore(live *config.Live) (resource.Store, error) {
	cfg := live.Get().Backend
	switch cfg.Type {
	case config.BackendMemory:
		log.Warnf("using in-memory resource store; queries never complete unless something updates them")
		return resource.NewMemoryStore(), nil
	case config.BackendHTTP:
		token, err := cfg.ResolveToken()
		if err != nil {
			return nil, err
		}
		return resource.NewHTTPStore(resource.HTTPStoreConfig{
			BaseURL:   cfg.BaseURL,
			Group:     cfg.Group,
			Version:   cfg.Version,
			Token:     token,
			Timeout:   cfg.Timeout,
			ProxyURL:  cfg.ProxyURL,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		})
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

func NewRecorder(live *config.Live) (*usage.Recorder, error) {
	cfg := live.Get().Usage
	rec, err := usage.Open(usage.BackendConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("usage backend: %w", err)
	}
	if cfg.DSN != "" {
		log.Infof("Usage backend initialized: %s", cfg.DSN)
	}
	return rec, nil
}

// PollConfigFrom converts the file settings into poller bounds.
func PollConfigFrom(cfg config.PollConfig) query.PollConfig {
	return query.PollConfig{
		Interval:    cfg.Interval,
		MaxInterval: cfg.MaxInterval,
		Timeout:     cfg.Timeout,
	}
}

func NewPoller(store resource.Store, live *config.Live) *query.Poller {
	return query.NewPoller(store, PollConfigFrom(live.Get().Poll))
}

func NewResolver(store resource.Store, live *config.Live) *streaming.Resolver {
	return streaming.NewResolver(store, live.Get().Stream.WaitForJob)
}

func NewRelay(live *config.Live) (*streaming.Relay, error) {
	cfg := live.Get()
	return streaming.NewRelay(streaming.RelayConfig{
		ConnectTimeout: cfg.Stream.ConnectTimeout,
		IdleTimeout:    cfg.Stream.IdleTimeout,
		ProxyURL:       cfg.Backend.ProxyURL,
	})
}

type openAIDeps struct {
	dig.In

	Live      *config.Live
	Store     resource.Store
	Submitter *query.Submitter
	Poller    *query.Poller
	Resolver  *streaming.Resolver
	Relay     *streaming.Relay
	Recorder  *usage.Recorder
	Metrics   *metrics.Metrics
}

func NewOpenAIHandler(d openAIDeps) *openai.Handler {
	return openai.NewHandler(openai.Deps{
		Store:     d.Store,
		Submitter: d.Submitter,
		Poller:    d.Poller,
		Resolver:  d.Resolver,
		Relay:     d.Relay,
		Recorder:  d.Recorder,
		Metrics:   d.Metrics,
		Config:    d.Live.Get,
	})
}

func NewServer(live *config.Live, oh *openai.Handler, qh *queries.Handler, rec *usage.Recorder, m *metrics.Metrics) *api.Server {
	return api.NewServer(live, api.Options{
		OpenAI:   oh,
		Queries:  qh,
		Recorder: rec,
		Metrics:  m,
	})
}

// Reload applies a new configuration to the running components. Listener
// and backend settings need a restart and are only swapped into Live.
func (a *App) Reload(cfg *config.Config) {
	old := a.Live.Get()
	if old.Backend != cfg.Backend {
		log.Warnf("backend settings changed; restart to apply")
	}
	if old.Usage != cfg.Usage {
		log.Warnf("usage settings changed; restart to apply")
	}
	a.Poller.SetConfig(PollConfigFrom(cfg.Poll))
	a.Resolver.SetWaitForJob(cfg.Stream.WaitForJob)
	a.Relay.SetIdleTimeout(cfg.Stream.IdleTimeout)
	a.Server.UpdateConfig(cfg)
}

// Run serves until ctx ends, then drains in-flight requests for up to
// shutdownTimeout and flushes usage records.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		log.Infof("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Server.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("server shutdown incomplete")
		}
		runErr = <-errCh
	}
	if err := a.Recorder.Close(); err != nil {
		log.WithError(err).Warn("usage flush failed")
	}
	return runErr
}
