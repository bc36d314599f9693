// Package openaiofficial adapts the OpenAI Responses API to llm.LLMClient.
package openaiofficial

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

// OfficialClient calls the Responses API with a flattened prompt.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a client. Extra options (base URL,
// HTTP client) are passed through to the SDK.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) *OfficialClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OfficialClient{client: openai.NewClient(opts...), model: model}
}

// Complete implements llm.LLMClient.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, llm.ErrEmptyMessages, "openai")
	}
	system, rest := llm.SplitSystem(in.Messages)

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(flatten(rest))},
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}
	if in.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	stop := "end_turn"
	if resp.Status == "incomplete" {
		stop = "max_tokens"
	}
	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: stop,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName implements llm.LLMClient.
func (o *OfficialClient) GetModelName() string { return o.model }

func flatten(msgs []llm.CompletionMessage) string {
	var sb strings.Builder
	for i := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if msgs[i].Role == llm.RoleAssistant {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(msgs[i].Content)
	}
	return sb.String()
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.StatusCode, err)
		e.Message = "openai API error"
		return e
	}
	return llmerrors.Classify(err, "openai")
}
