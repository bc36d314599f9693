package openaiofficial

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

func TestFlatten(t *testing.T) {
	got := flatten([]llm.CompletionMessage{
		llm.NewUserMessage("first"),
		{Role: llm.RoleAssistant, Content: "reply"},
		llm.NewUserMessage("second"),
	})
	assert.Equal(t, "first\n\nAssistant: reply\n\nsecond", got)
}

func TestCompleteAgainstServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/responses", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"resp_1","object":"response","created_at":1,"status":"completed","model":"gpt-x",
			"output":[{"type":"message","id":"m1","role":"assistant","status":"completed",
				"content":[{"type":"output_text","text":"hello","annotations":[]}]}],
			"usage":{"input_tokens":11,"output_tokens":2,"total_tokens":13,
				"input_tokens_details":{"cached_tokens":0},"output_tokens_details":{"reasoning_tokens":0}}
		}`))
	}))
	defer srv.Close()

	c := NewOfficialClientWithModel("sk-test", "gpt-x", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewSystemMessage("be terse"), llm.NewUserMessage("hi")},
		MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, llm.Usage{InputTokens: 11, OutputTokens: 2}, resp.Usage)
	assert.Equal(t, "be terse", body["instructions"])
	assert.Equal(t, "hi", body["input"])
	assert.InDelta(t, 256, body["max_output_tokens"], 0)
}

func TestCompleteClassifiesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOfficialClientWithModel("sk-bad", "gpt-x", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("x")}})
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeAuth, llmerrors.TypeOf(err))
}
