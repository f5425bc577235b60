package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestRecovery_PanicBodyMatchesRouteGroup(t *testing.T) {
	boom := func(c *gin.Context) {
		if c.GetHeader("X-Boom") != "" {
			panic("nil target table")
		}
		c.Next()
	}
	srv := NewServer(config.NewLive(config.NewDefaultConfig()), Options{Middleware: []gin.HandlerFunc{boom}})

	cases := []struct {
		path    string
		message string
	}{
		{"/openai/v1/models", "error.message"},
		{"/api/v1/usage", "detail"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set("X-Boom", "1")
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
			assert.Equal(t, "nil target table", gjson.Get(rec.Body.String(), tc.message).String())
		})
	}

	t.Run("openai error type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/openai/v1/models", nil)
		req.Header.Set("X-Boom", "1")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "server_error", gjson.Get(rec.Body.String(), "error.type").String())
	})
}
