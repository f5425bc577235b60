// Package openai serves the OpenAI-compatible chat completion and model
// listing routes on top of query jobs.
package openai

import (
	"github.com/nghyane/query-gateway/internal/config"
	"github.com/nghyane/query-gateway/internal/metrics"
	"github.com/nghyane/query-gateway/internal/query"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/nghyane/query-gateway/internal/usage"
)

// Handler carries the collaborators of the OpenAI routes. Settings are read
// through getConfig on every request so a reload applies immediately.
type Handler struct {
	store     resource.Store
	submitter *query.Submitter
	poller    *query.Poller
	resolver  *streaming.Resolver
	relay     *streaming.Relay
	recorder  *usage.Recorder
	metrics   *metrics.Metrics
	getConfig func() *config.Config
}

// Deps groups the constructor arguments.
type Deps struct {
	Store     resource.Store
	Submitter *query.Submitter
	Poller    *query.Poller
	Resolver  *streaming.Resolver
	Relay     *streaming.Relay
	Recorder  *usage.Recorder
	Metrics   *metrics.Metrics
	Config    func() *config.Config
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		submitter: d.Submitter,
		poller:    d.Poller,
		resolver:  d.Resolver,
		relay:     d.Relay,
		recorder:  d.Recorder,
		metrics:   d.Metrics,
		getConfig: d.Config,
	}
}

func (h *Handler) namespace() string {
	if cfg := h.getConfig(); cfg != nil && cfg.Namespace != "" {
		return cfg.Namespace
	}
	return config.DefaultNamespace
}

func (h *Handler) ownedBy() string {
	if cfg := h.getConfig(); cfg != nil && cfg.Models.OwnedBy != "" {
		return cfg.Models.OwnedBy
	}
	return config.DefaultOwnedBy
}
