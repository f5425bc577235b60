package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("agent", "poll", "ok")
	m.ObserveRequest("agent", "poll", "ok")
	m.ObserveFallback("memory not found")
	m.ObserveRelayed("sse", 3)
	m.ObserveRelayed("sse", 0)
	m.ObserveModelListError("teams")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("agent", "poll", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("memory not found")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.relayedEvents.WithLabelValues("sse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelListErrors.WithLabelValues("teams")))
}

func TestRelayGauge(t *testing.T) {
	m := New()
	done := m.RelayStarted("lines")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeRelays.WithLabelValues("lines")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeRelays.WithLabelValues("lines")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePoll("done", 1500*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "query_gateway_poll_duration_seconds_count{phase=\"done\"} 1"), body)
	assert.Contains(t, body, "go_goroutines")
}
