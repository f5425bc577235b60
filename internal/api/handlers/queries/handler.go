// Package queries serves CRUD, cancel and raw event streaming for query
// resources under /api/v1/namespaces/{namespace}/queries.
package queries

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	"github.com/nghyane/query-gateway/internal/json"
	"github.com/nghyane/query-gateway/internal/metrics"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
	"github.com/nghyane/query-gateway/internal/translate"
	"github.com/tidwall/sjson"
)

type Handler struct {
	store    resource.Store
	resolver *streaming.Resolver
	relay    *streaming.Relay
	metrics  *metrics.Metrics
}

func NewHandler(store resource.Store, resolver *streaming.Resolver, relay *streaming.Relay, m *metrics.Metrics) *Handler {
	return &Handler{store: store, resolver: resolver, relay: relay, metrics: m}
}

// Register mounts the routes on a group rooted at .../queries.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:name", h.Get)
	g.PUT("/:name", h.Update)
	g.PATCH("/:name/cancel", h.Cancel)
	g.DELETE("/:name", h.Delete)
	g.GET("/:name/stream", h.Stream)
}

// CreateRequest is the body of POST. Structured fields are passed through
// to the spec unchanged.
type CreateRequest struct {
	Name              string          `json:"name"`
	Input             json.RawMessage `json:"input"`
	Memory            json.RawMessage `json:"memory,omitempty"`
	Parameters        json.RawMessage `json:"parameters,omitempty"`
	Selector          json.RawMessage `json:"selector,omitempty"`
	ServiceAccount    string          `json:"serviceAccount,omitempty"`
	SessionID         string          `json:"sessionId,omitempty"`
	Streaming         bool            `json:"streaming,omitempty"`
	Targets           json.RawMessage `json:"targets,omitempty"`
	Timeout           string          `json:"timeout,omitempty"`
	TTL               string          `json:"ttl,omitempty"`
	Cancel            *bool           `json:"cancel,omitempty"`
	Evaluators        json.RawMessage `json:"evaluators,omitempty"`
	EvaluatorSelector json.RawMessage `json:"evaluatorSelector,omitempty"`
}

// UpdateRequest is the body of PUT. Only fields present and non-null
// replace their spec counterparts.
type UpdateRequest struct {
	Input             json.RawMessage `json:"input,omitempty"`
	Memory            json.RawMessage `json:"memory,omitempty"`
	Parameters        json.RawMessage `json:"parameters,omitempty"`
	Selector          json.RawMessage `json:"selector,omitempty"`
	ServiceAccount    *string         `json:"serviceAccount,omitempty"`
	SessionID         *string         `json:"sessionId,omitempty"`
	Targets           json.RawMessage `json:"targets,omitempty"`
	Timeout           *string         `json:"timeout,omitempty"`
	TTL               *string         `json:"ttl,omitempty"`
	Cancel            *bool           `json:"cancel,omitempty"`
	Evaluators        json.RawMessage `json:"evaluators,omitempty"`
	EvaluatorSelector json.RawMessage `json:"evaluatorSelector,omitempty"`
}

// specEdit sets members on a spec document in place, keeping members it
// does not touch. Empty and JSON null values are skipped.
type specEdit struct {
	doc []byte
	err error
}

func newSpecEdit(doc []byte) *specEdit {
	if len(doc) == 0 {
		doc = []byte(`{}`)
	}
	return &specEdit{doc: doc}
}

func (e *specEdit) raw(key string, v json.RawMessage) {
	if e.err != nil || len(v) == 0 || string(v) == "null" {
		return
	}
	e.doc, e.err = sjson.SetRawBytes(e.doc, key, v)
}

func (e *specEdit) value(key string, v any) {
	if e.err != nil {
		return
	}
	e.doc, e.err = sjson.SetBytes(e.doc, key, v)
}

func (h *Handler) List(c *gin.Context) {
	ns := c.Param("namespace")
	items, err := h.store.List(c.Request.Context(), resource.KindQuery, ns)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewQueryList(items))
}

func (h *Handler) Create(c *gin.Context) {
	ns := c.Param("namespace")
	var req CreateRequest
	if err := handlers.DecodeJSON(c, &req); err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	if req.Name == "" {
		handlers.RespondDetailError(c, handlers.BadRequest("name is required"))
		return
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		handlers.RespondDetailError(c, handlers.BadRequest("input is required"))
		return
	}

	spec := newSpecEdit(nil)
	spec.raw("input", req.Input)
	spec.raw("memory", req.Memory)
	spec.raw("parameters", req.Parameters)
	spec.raw("selector", req.Selector)
	if req.ServiceAccount != "" {
		spec.value("serviceAccount", req.ServiceAccount)
	}
	if req.SessionID != "" {
		spec.value("sessionId", req.SessionID)
	}
	spec.raw("targets", req.Targets)
	if req.Timeout != "" {
		spec.value("timeout", req.Timeout)
	}
	if req.TTL != "" {
		spec.value("ttl", req.TTL)
	}
	if req.Cancel != nil {
		spec.value("cancel", *req.Cancel)
	}
	spec.raw("evaluators", req.Evaluators)
	spec.raw("evaluatorSelector", req.EvaluatorSelector)
	if spec.err != nil {
		handlers.RespondDetailError(c, handlers.BadRequest(spec.err.Error()))
		return
	}
	obj := &resource.Object{
		Metadata: resource.Metadata{Name: req.Name, Namespace: ns},
		Spec:     spec.doc,
	}
	if req.Streaming {
		obj.SetAnnotation(resource.AnnotationStreamingEnabled, "true")
	}

	created, err := h.store.Create(c.Request.Context(), resource.KindQuery, ns, obj)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewQueryDetail(created))
}

func (h *Handler) Get(c *gin.Context) {
	obj, err := h.store.Get(c.Request.Context(), resource.KindQuery, c.Param("namespace"), c.Param("name"))
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewQueryDetail(obj))
}

// Update reads the query, replaces the spec fields given in the body and
// writes the whole object back.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	ns, name := c.Param("namespace"), c.Param("name")
	var req UpdateRequest
	if err := handlers.DecodeJSON(c, &req); err != nil {
		handlers.RespondDetailError(c, err)
		return
	}

	current, err := h.store.Get(ctx, resource.KindQuery, ns, name)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	spec := newSpecEdit(current.Clone().Spec)

	spec.raw("input", req.Input)
	spec.raw("memory", req.Memory)
	spec.raw("parameters", req.Parameters)
	spec.raw("selector", req.Selector)
	if req.ServiceAccount != nil {
		spec.value("serviceAccount", *req.ServiceAccount)
	}
	if req.SessionID != nil {
		spec.value("sessionId", *req.SessionID)
	}
	spec.raw("targets", req.Targets)
	if req.Timeout != nil {
		spec.value("timeout", *req.Timeout)
	}
	if req.TTL != nil {
		spec.value("ttl", *req.TTL)
	}
	if req.Cancel != nil {
		spec.value("cancel", *req.Cancel)
	}
	spec.raw("evaluators", req.Evaluators)
	spec.raw("evaluatorSelector", req.EvaluatorSelector)
	if spec.err != nil {
		handlers.RespondDetailError(c, spec.err)
		return
	}
	next := current.Clone()
	next.Spec = spec.doc
	updated, err := h.store.Update(ctx, resource.KindQuery, ns, next)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewQueryDetail(updated))
}

// Cancel sets spec.cancel with a merge patch so concurrent spec edits are
// not overwritten.
func (h *Handler) Cancel(c *gin.Context) {
	patch, err := sjson.SetBytes([]byte(`{}`), "spec.cancel", true)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	updated, err := h.store.Patch(c.Request.Context(), resource.KindQuery, c.Param("namespace"), c.Param("name"), patch)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewQueryDetail(updated))
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), resource.KindQuery, c.Param("namespace"), c.Param("name")); err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
