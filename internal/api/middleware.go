package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	"github.com/nghyane/query-gateway/internal/logging"
)

// corsMiddleware adds permissive CORS headers to every response and answers
// preflight requests directly.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// compressionMiddleware gzips /api/v1 responses except raw streams, which
// must reach the client line by line.
func compressionMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/stream$`}),
	)
}

// panicResponse answers a recovered panic in the error shape of the route
// group it hit.
func panicResponse(c *gin.Context, recovered any) {
	msg := fmt.Sprint(recovered)
	if strings.HasPrefix(c.Request.URL.Path, "/openai/") {
		handlers.RespondJSON(c, http.StatusInternalServerError, handlers.OpenAIError{Error: handlers.OpenAIErrorBody{
			Message: msg,
			Type:    handlers.ErrTypeServer,
			Code:    http.StatusText(http.StatusInternalServerError),
		}})
		return
	}
	handlers.RespondJSON(c, http.StatusInternalServerError, handlers.DetailError{Detail: msg})
}

// setupMiddleware applies logging, recovery and CORS in that order.
func (s *Server) setupMiddleware(extra []gin.HandlerFunc) {
	s.engine.Use(logging.GinLogrusLogger())
	s.engine.Use(logging.GinLogrusRecovery(panicResponse))
	for _, mw := range extra {
		s.engine.Use(mw)
	}
	s.engine.Use(corsMiddleware())
}
