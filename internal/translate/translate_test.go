package translate

import (
	"strings"
	"testing"
	"time"

	"github.com/nghyane/query-gateway/internal/json"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/nghyane/query-gateway/internal/target"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func doneJob(status string) *resource.Object {
	return &resource.Object{
		Metadata: resource.Metadata{
			Name:              "openai-query-1a2b3c4d",
			Namespace:         "ns",
			UID:               "uid-1",
			CreationTimestamp: "2024-03-01T10:00:00Z",
		},
		Spec:   []byte(`{"input":"user: hi","targets":[{"type":"agent","name":"weather"}]}`),
		Status: []byte(status),
	}
}

func TestCreatedAt(t *testing.T) {
	got := CreatedAt(resource.Metadata{CreationTimestamp: "2024-03-01T10:00:00Z"})
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

	fixed := time.Unix(1700000000, 0)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()
	assert.Equal(t, fixed, CreatedAt(resource.Metadata{CreationTimestamp: "yesterday"}))
	assert.Equal(t, fixed, CreatedAt(resource.Metadata{}))
}

func TestChatCompletion_ReportedUsage(t *testing.T) {
	job := doneJob(`{"phase":"done","responses":[{"content":"Sunny, 21°C\n"}],
		"tokenUsage":{"promptTokens":12,"completionTokens":5,"totalTokens":17}}`)

	c := ChatCompletion(job, "agent/weather")
	assert.Equal(t, "openai-query-1a2b3c4d", c.ID)
	assert.Equal(t, ObjectChatCompletion, c.Object)
	assert.Equal(t, "agent/weather", c.Model)
	assert.Equal(t, int64(1709287200), c.Created)
	require.Len(t, c.Choices, 1)
	assert.Equal(t, openai.ChatMessageRoleAssistant, c.Choices[0].Message.Role)
	assert.Equal(t, "Sunny, 21°C\n", c.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, c.Choices[0].FinishReason)
	assert.Equal(t, openai.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, c.Usage)
}

func TestUsage_TotalDerivedWhenMissing(t *testing.T) {
	job := doneJob(`{"tokenUsage":{"promptTokens":3,"completionTokens":4}}`)
	assert.Equal(t, 7, Usage(job, "").TotalTokens)
}

func TestUsage_EstimatedWithoutReport(t *testing.T) {
	job := doneJob(`{"phase":"done","responses":[{"content":"hello there"}]}`)
	u := Usage(job, Result(job))
	if _, ok := EstimateTokens("x"); !ok {
		assert.Equal(t, openai.Usage{}, u)
		return
	}
	assert.Positive(t, u.PromptTokens)
	assert.Positive(t, u.CompletionTokens)
	assert.Equal(t, u.PromptTokens+u.CompletionTokens, u.TotalTokens)
}

func TestEstimateTokens_Empty(t *testing.T) {
	n, ok := EstimateTokens("")
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestChatCompletion_MissingResponse(t *testing.T) {
	c := ChatCompletion(doneJob(`{"phase":"done"}`), "model/gpt")
	assert.Equal(t, "", c.Choices[0].Message.Content)
}

func TestCompletionChunkSSE(t *testing.T) {
	c := ChatCompletion(doneJob(`{"responses":[{"content":"hi"}],
		"tokenUsage":{"promptTokens":1,"completionTokens":1,"totalTokens":2}}`), "agent/weather")

	events, err := CompletionChunkSSE(c)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "data: [DONE]\n\n", events[1])

	first := events[0]
	require.True(t, strings.HasPrefix(first, "data: "))
	require.True(t, strings.HasSuffix(first, "\n\n"))
	payload := strings.TrimSuffix(strings.TrimPrefix(first, "data: "), "\n\n")
	assert.Equal(t, ObjectChatCompletionChunk, gjson.Get(payload, "object").String())
	assert.Equal(t, "assistant", gjson.Get(payload, "choices.0.delta.role").String())
	assert.Equal(t, "hi", gjson.Get(payload, "choices.0.delta.content").String())
	assert.Equal(t, "stop", gjson.Get(payload, "choices.0.finish_reason").String())
	assert.Equal(t, int64(2), gjson.Get(payload, "usage.total_tokens").Int())
}

func TestModelEntries(t *testing.T) {
	objs := []resource.Object{
		{Metadata: resource.Metadata{Name: "weather", CreationTimestamp: "2024-03-01T10:00:00Z"}},
		{Metadata: resource.Metadata{Name: "math", CreationTimestamp: "2024-03-02T10:00:00Z"}},
	}
	entries := ModelEntries(target.KindAgent, objs, "ark")
	require.Len(t, entries, 2)
	assert.Equal(t, ModelEntry{ID: "agent/weather", Object: "model", Created: 1709287200, OwnedBy: "ark"}, entries[0])
	assert.Equal(t, "agent/math", entries[1].ID)

	body, err := json.Marshal(NewModelList(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"object":"list","data":[]}`, string(body))
}

func TestNewQueryDetail_Streaming(t *testing.T) {
	job := doneJob(`{"phase":"running"}`)
	job.SetAnnotation(resource.AnnotationStreamingEnabled, "true")

	d := NewQueryDetail(job)
	require.NotNil(t, d.Streaming)
	assert.Equal(t, StreamingInfo{
		Enabled:   true,
		URL:       "/api/v1/namespaces/ns/queries/openai-query-1a2b3c4d/stream",
		SessionID: "uid-1",
	}, *d.Streaming)
	assert.JSONEq(t, `"user: hi"`, string(d.Input))
	assert.JSONEq(t, `[{"type":"agent","name":"weather"}]`, string(d.Targets))
	assert.JSONEq(t, `{"phase":"running"}`, string(d.Status))
}

func TestNewQueryDetail_SessionIDFromSpec(t *testing.T) {
	job := doneJob("")
	job.Spec = []byte(`{"input":"x","sessionId":"s-9","memory":{"name":"mem"},"cancel":true,"timeout":"5m"}`)
	job.SetAnnotation(resource.AnnotationStreamingEnabled, "true")

	d := NewQueryDetail(job)
	assert.Equal(t, "s-9", d.Streaming.SessionID)
	assert.Equal(t, "s-9", d.SessionID)
	assert.True(t, d.Cancel)
	assert.Equal(t, "5m", d.Timeout)
	assert.JSONEq(t, `{"name":"mem"}`, string(d.Memory))
	assert.Nil(t, d.Status)
}

func TestNewQueryDetail_NoStreamingUnlessExactlyTrue(t *testing.T) {
	job := doneJob("")
	job.SetAnnotation(resource.AnnotationStreamingEnabled, "True")
	assert.Nil(t, NewQueryDetail(job).Streaming)

	body, err := json.Marshal(NewQueryDetail(doneJob("")))
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "streaming").Exists())
}

func TestNewQueryList(t *testing.T) {
	list := NewQueryList([]resource.Object{*doneJob(`{"phase":"done"}`)})
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "2024-03-01T10:00:00Z", list.Items[0].CreationTimestamp)

	body, err := json.Marshal(NewQueryList(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"count":0}`, string(body))
}
