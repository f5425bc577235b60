package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const completionJSON = `{"id":"openai-query-abc","object":"chat.completion","created":1709287200,"model":"agent/weather",
"choices":[{"index":0,"message":{"role":"assistant","content":"Sunny"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`

func fakeGateway(t *testing.T, stream bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openai/v1/models":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"agent/weather","object":"model","created":1,"owned_by":"ark"}]}`)
		case "/openai/v1/chat/completions":
			body, _ := io.ReadAll(r.Body)
			if gjson.GetBytes(body, "model").String() == "bad" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":{"message":"invalid target","type":"invalid_request_error"}}`)
				return
			}
			if gjson.GetBytes(body, "stream").Bool() && stream {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: {\"n\":1}\n\n")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, completionJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteChat(t *testing.T) {
	srv := fakeGateway(t, false)
	var out bytes.Buffer
	require.NoError(t, completeChat(context.Background(), srv.URL, "agent/weather", "hi", &out))
	assert.Equal(t, "Sunny\n", out.String())
}

func TestStreamChat_RelaysEvents(t *testing.T) {
	srv := fakeGateway(t, true)
	var out bytes.Buffer
	require.NoError(t, streamChat(context.Background(), srv.URL, "agent/weather", "hi", &out))
	assert.Equal(t, "data: {\"n\":1}\n\n", out.String())
}

func TestStreamChat_FallbackPrintsSingleChunk(t *testing.T) {
	srv := fakeGateway(t, false)
	var out bytes.Buffer
	require.NoError(t, streamChat(context.Background(), srv.URL, "agent/weather", "hi", &out))

	parts := strings.Split(strings.TrimSuffix(out.String(), "\n\n"), "\n\n")
	require.Len(t, parts, 2)
	chunk := strings.TrimPrefix(parts[0], "data: ")
	assert.Equal(t, "chat.completion.chunk", gjson.Get(chunk, "object").String())
	assert.Equal(t, "Sunny", gjson.Get(chunk, "choices.0.delta.content").String())
	assert.Equal(t, "data: [DONE]", parts[1])
}

func TestStreamChat_ErrorStatus(t *testing.T) {
	srv := fakeGateway(t, true)
	err := streamChat(context.Background(), srv.URL, "bad", "hi", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400: invalid target")
}

func TestListModels(t *testing.T) {
	srv := fakeGateway(t, false)
	var out bytes.Buffer
	require.NoError(t, listModels(context.Background(), srv.URL, &out))
	assert.Contains(t, out.String(), "agent/weather")
	assert.Contains(t, out.String(), "ark")
}

func TestDoInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, DoInitConfig(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend:")

	require.NoError(t, os.WriteFile(path, []byte("port: 1\n"), 0o600))
	require.NoError(t, DoInitConfig(path, false))
	data, _ = os.ReadFile(path)
	assert.Equal(t, "port: 1\n", string(data))

	require.NoError(t, DoInitConfig(path, true))
	data, _ = os.ReadFile(path)
	assert.Contains(t, string(data), "backend:")
}
