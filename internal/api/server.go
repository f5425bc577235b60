// Package api wires the gateway's HTTP routes onto a gin engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	"github.com/nghyane/query-gateway/internal/api/handlers/openai"
	"github.com/nghyane/query-gateway/internal/api/handlers/queries"
	"github.com/nghyane/query-gateway/internal/config"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/metrics"
	"github.com/nghyane/query-gateway/internal/usage"
)

const defaultUsageDays = 7

// Server owns the gin engine and the listening http.Server.
type Server struct {
	engine   *gin.Engine
	server   *http.Server
	cfg      *config.Live
	recorder *usage.Recorder
	metrics  *metrics.Metrics
}

// Options groups what NewServer mounts.
type Options struct {
	OpenAI     *openai.Handler
	Queries    *queries.Handler
	Recorder   *usage.Recorder
	Metrics    *metrics.Metrics
	Middleware []gin.HandlerFunc
}

func NewServer(live *config.Live, opts Options) *Server {
	cfg := live.Get()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		engine:   gin.New(),
		cfg:      live,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
	}
	s.setupMiddleware(opts.Middleware)
	s.setupRoutes(opts)

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(opts Options) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		handlers.RespondJSON(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	if opts.OpenAI != nil {
		v1 := s.engine.Group("/openai/v1")
		v1.POST("/chat/completions", opts.OpenAI.ChatCompletions)
		v1.GET("/models", opts.OpenAI.ListModels)
	}

	api := s.engine.Group("/api/v1", compressionMiddleware())
	api.GET("/usage", s.getUsage)
	if opts.Queries != nil {
		opts.Queries.Register(api.Group("/namespaces/:namespace/queries"))
	}
}

// getUsage returns counters plus breakdowns for the last ?days= days.
func (s *Server) getUsage(c *gin.Context) {
	days := defaultUsageDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			handlers.RespondDetailError(c, handlers.BadRequest("days must be a positive integer"))
			return
		}
		days = n
	}
	since := time.Now().AddDate(0, 0, -days)
	handlers.RespondJSON(c, http.StatusOK, s.recorder.Snapshot(c.Request.Context(), since))
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Config() *config.Config { return s.cfg.Get() }

// UpdateConfig swaps the settings read per request. The listen address is
// fixed at startup.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	prev := s.cfg.Swap(cfg)
	if prev != nil && prev.Addr() != cfg.Addr() {
		log.Warnf("listen address change to %s requires a restart", cfg.Addr())
	}
	if prev != nil && prev.Debug != cfg.Debug {
		log.SetDebug(cfg.Debug)
	}
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	log.Infof("query-gateway listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
