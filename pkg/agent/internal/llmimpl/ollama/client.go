// Package ollama adapts a local Ollama server to llm.LLMClient.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

const defaultHost = "http://localhost:11434"

// Client calls /api/chat with streaming disabled.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a client for hostURL. An unparseable
// host falls back to localhost.
func NewOllamaClientWithModel(hostURL, model string) *Client {
	parsed, err := url.Parse(hostURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		parsed, _ = url.Parse(defaultHost)
	}
	return &Client{
		client:  api.NewClient(parsed, http.DefaultClient),
		model:   model,
		hostURL: parsed.String(),
	}
}

// Complete implements llm.LLMClient. num_ctx and num_predict are passed as
// model options so each stage gets its own window.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion")
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  buildOptions(in),
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			InputTokens:  response.PromptEvalCount,
			OutputTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName implements llm.LLMClient.
func (o *Client) GetModelName() string { return o.model }

func buildOptions(in llm.CompletionRequest) map[string]any {
	opts := map[string]any{"temperature": in.Temperature}
	if in.NumCtx > 0 {
		opts["num_ctx"] = in.NumCtx
	}
	if in.MaxTokens > 0 {
		opts["num_predict"] = in.MaxTokens
	}
	return opts
}

func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, llm.ErrEmptyMessages
	}
	out := make([]api.Message, 0, len(messages))
	for i := range messages {
		out = append(out, api.Message{Role: string(messages[i].Role), Content: messages[i].Content})
	}
	return out, nil
}

func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		e := llmerrors.FromStatus(statusErr.StatusCode, err)
		e.Message = fmt.Sprintf("ollama: %s", statusErr.ErrorMessage)
		return e
	}
	return llmerrors.Classify(err, "ollama")
}
