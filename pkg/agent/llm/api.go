// Package llm defines the oracle client contract used by every pipeline stage.
package llm

import (
	"context"
	"errors"
)

// CompletionRole is the role of a message in a conversation.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// TemperatureDeterministic is used by stages that must emit strict JSON.
const TemperatureDeterministic = 0.2

// ErrEmptyMessages is returned by providers when a request carries no messages.
var ErrEmptyMessages = errors.New("no messages in request")

// CompletionMessage is one message of a request.
type CompletionMessage struct {
	Role    CompletionRole `json:"role"`
	Content string         `json:"content"`
}

// CompletionRequest is a single, non-streaming oracle call.
// NumCtx is advisory for providers without a context-window option.
type CompletionRequest struct {
	Messages    []CompletionMessage
	NumCtx      int
	MaxTokens   int
	Temperature float32
	// Stage is the pipeline stage issuing the call. Used for metrics only.
	Stage string
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResponse is the oracle's reply.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      Usage
}

// LLMClient is a text-generation endpoint.
type LLMClient interface { //nolint:revive // name kept for readability at call sites
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	GetModelName() string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// SplitSystem separates system text from the conversational messages.
// Providers with a dedicated system field use this.
func SplitSystem(msgs []CompletionMessage) (string, []CompletionMessage) {
	var system string
	rest := make([]CompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
