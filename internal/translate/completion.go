// Package translate maps query and resource documents onto the OpenAI wire
// types and the detailed query view.
package translate

import (
	"strings"
	"sync"
	"time"

	"github.com/nghyane/query-gateway/internal/json"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/resource"
	"github.com/sashabaranov/go-openai"
	"github.com/tiktoken-go/tokenizer"
)

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// now is replaced in tests.
var now = time.Now

// CreatedAt parses metadata.creationTimestamp as UTC. A missing or
// malformed timestamp falls back to the current time.
func CreatedAt(meta resource.Metadata) time.Time {
	if meta.CreationTimestamp != "" {
		if t, err := time.ParseInLocation(resource.TimestampLayout, meta.CreationTimestamp, time.UTC); err == nil {
			return t
		}
		log.Debugf("unparsable creationTimestamp %q on %s", meta.CreationTimestamp, meta.Name)
	}
	return now()
}

// Result is the first response content of a finished job, verbatim.
func Result(job *resource.Object) string {
	return job.StatusField("responses.0.content").String()
}

// ChatCompletion renders a done job as a chat completion. model echoes the
// identifier the client asked for.
func ChatCompletion(job *resource.Object, model string) openai.ChatCompletionResponse {
	content := Result(job)
	return openai.ChatCompletionResponse{
		ID:      job.Metadata.Name,
		Object:  ObjectChatCompletion,
		Created: CreatedAt(job.Metadata).Unix(),
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: Usage(job, content),
	}
}

// Usage prefers status.tokenUsage. Without it the counts are estimated from
// the job input and the result; if that fails they stay zero.
func Usage(job *resource.Object, content string) openai.Usage {
	reported := job.StatusField("tokenUsage")
	if reported.Exists() {
		u := openai.Usage{
			PromptTokens:     int(reported.Get("promptTokens").Int()),
			CompletionTokens: int(reported.Get("completionTokens").Int()),
			TotalTokens:      int(reported.Get("totalTokens").Int()),
		}
		if u.TotalTokens == 0 {
			u.TotalTokens = u.PromptTokens + u.CompletionTokens
		}
		return u
	}

	prompt, okPrompt := EstimateTokens(job.SpecField("input").String())
	completion, okCompletion := EstimateTokens(content)
	if !okPrompt || !okCompletion {
		return openai.Usage{}
	}
	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// EstimateTokens counts text with the cl100k_base encoding.
func EstimateTokens(text string) (int, bool) {
	if text == "" {
		return 0, true
	}
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
		if codecErr != nil {
			log.Warnf("token estimation disabled: %v", codecErr)
		}
	})
	if codecErr != nil {
		return 0, false
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, false
	}
	return len(ids), true
}

// CompletionChunkSSE renders a completion as a single SSE chunk followed by
// the [DONE] marker.
func CompletionChunkSSE(c openai.ChatCompletionResponse) ([]string, error) {
	content := ""
	if len(c.Choices) > 0 {
		content = c.Choices[0].Message.Content
	}
	usage := c.Usage
	chunk := openai.ChatCompletionStreamResponse{
		ID:      c.ID,
		Object:  ObjectChatCompletionChunk,
		Created: c.Created,
		Model:   c.Model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: &usage,
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("data: ")
	b.Write(payload)
	b.WriteString("\n\n")
	return []string{b.String(), "data: [DONE]\n\n"}, nil
}
