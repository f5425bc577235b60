package queries

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/streaming"
)

// Stream relays a query's session stream from its memory service as
// newline-framed text. Streaming must have been enabled when the query was
// created; a memory without an address is a bad gateway. Once the response
// has started, upstream failures become a single error event.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	ns, name := c.Param("namespace"), c.Param("name")

	job, err := h.store.Get(ctx, resource.KindQuery, ns, name)
	if err != nil {
		handlers.RespondDetailError(c, err)
		return
	}
	session, err := h.resolver.ResolveSession(ctx, ns, job)
	switch {
	case errors.Is(err, streaming.ErrStreamingNotEnabled):
		handlers.RespondJSON(c, http.StatusBadRequest, handlers.DetailError{Detail: "Streaming not enabled for this query"})
		return
	case err != nil:
		log.WithError(err).Warnf("raw stream for %s/%s unresolved", ns, name)
		handlers.RespondJSON(c, http.StatusBadGateway, handlers.DetailError{Detail: "Memory service address not resolved"})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "*")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	up, err := h.relay.Open(ctx, session.URL)
	if err != nil {
		writeErrorEvent(c, err)
		return
	}
	defer up.Close()

	if h.metrics != nil {
		done := h.metrics.RelayStarted("lines")
		defer done()
	}
	lines, err := up.Forward(c.Writer, streaming.FramingLines)
	if h.metrics != nil {
		h.metrics.ObserveRelayed("lines", lines)
	}
	if err != nil && ctx.Err() == nil {
		writeErrorEvent(c, err)
	}
}

func writeErrorEvent(c *gin.Context, err error) {
	if c.Request.Context().Err() != nil {
		return
	}
	var status *streaming.UpstreamStatusError
	msg := err.Error()
	if !errors.As(err, &status) {
		msg = "Streaming failed: " + msg
	}
	log.WithError(err).Warnf("raw stream %s", c.Request.URL.Path)
	_, _ = io.WriteString(c.Writer, streaming.ErrorEvent(msg))
	c.Writer.Flush()
}
