package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/nghyane/query-gateway/internal/json"
	"github.com/nghyane/query-gateway/internal/translate"
	"github.com/openai/openai-go"
	gopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	chatModel  string
	chatStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send one message to a target through a running gateway",
	Long: `Send one user message to a target such as agent/weather.

With --stream the memory event stream is printed as it arrives. When the
gateway falls back to a complete response it is printed as a single SSE
chunk so the output shape stays the same.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		base, err := gatewayBase()
		if err != nil {
			return err
		}
		prompt := strings.Join(args, " ")
		if chatStream {
			return streamChat(c.Context(), base, chatModel, prompt, os.Stdout)
		}
		return completeChat(c.Context(), base, chatModel, prompt, os.Stdout)
	},
}

func completeChat(ctx context.Context, base, model, prompt string, w io.Writer) error {
	client := newClient(base)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat: empty response")
	}
	_, err = fmt.Fprintln(w, resp.Choices[0].Message.Content)
	return err
}

// streamChat posts with stream=true. The OpenAI client cannot be used here
// because a fallback answer arrives as plain JSON instead of chunks.
func streamChat(ctx context.Context, base, model, prompt string, w io.Writer) error {
	body, err := json.Marshal(gopenai.ChatCompletionRequest{
		Model:    model,
		Messages: []gopenai.ChatCompletionMessage{{Role: gopenai.ChatMessageRoleUser, Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/openai/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return fmt.Errorf("chat: gateway returned %d: %s", resp.StatusCode, msg)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		_, err = io.Copy(w, resp.Body)
		return err
	}

	var completion gopenai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return fmt.Errorf("chat: decode response: %w", err)
	}
	events, err := translate.CompletionChunkSSE(completion)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if _, err := io.WriteString(w, ev); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "target as kind/name, for example agent/weather")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "relay the event stream")
	chatCmd.Flags().StringVar(&gatewayURL, "url", "", "gateway base URL (default from config)")
	_ = chatCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(chatCmd)
}
