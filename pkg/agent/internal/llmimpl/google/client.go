// Package google adapts the Gemini API to llm.LLMClient.
package google

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

// GeminiClient creates the SDK client lazily because construction needs a context.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
	mu     sync.Mutex
}

// NewGeminiClientWithModel creates a client for model.
func NewGeminiClientWithModel(apiKey, model string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "create gemini client")
	}
	g.client = client
	return client, nil
}

// Complete implements llm.LLMClient.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, contents := convertMessages(in.Messages)
	if len(contents) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, llm.ErrEmptyMessages, "gemini")
	}
	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	temp := in.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if in.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(in.MaxTokens) //nolint:gosec // bounded by stage config
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from gemini")
	}

	resp := llm.CompletionResponse{Content: result.Text(), StopReason: getStopReason(result)}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// GetModelName implements llm.LLMClient.
func (g *GeminiClient) GetModelName() string { return g.model }

func convertMessages(msgs []llm.CompletionMessage) (string, []*genai.Content) {
	system, rest := llm.SplitSystem(msgs)
	contents := make([]*genai.Content, 0, len(rest))
	for i := range rest {
		role := "user"
		if rest[i].Role == llm.RoleAssistant {
			role = "model" // Gemini's name for the assistant
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: rest[i].Content}}})
	}
	return system, contents
}

func getStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 {
		return "incomplete"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonStop, "":
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return string(result.Candidates[0].FinishReason)
	}
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.Code, err)
		e.Message = "gemini API error"
		return e
	}
	return llmerrors.Classify(err, "gemini")
}
