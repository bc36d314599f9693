package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

func TestNewOllamaClientWithModel(t *testing.T) {
	tests := []struct {
		name     string
		hostURL  string
		wantHost string
	}{
		{"valid host", "http://localhost:11434", "http://localhost:11434"},
		{"custom host", "http://192.168.1.100:11434", "http://192.168.1.100:11434"},
		{"invalid URL falls back", "not-a-valid-url", defaultHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOllamaClientWithModel(tt.hostURL, "qwen2.5-coder")
			assert.Equal(t, "qwen2.5-coder", c.GetModelName())
			assert.Equal(t, tt.wantHost, c.hostURL)
		})
	}
}

func TestBuildOptions(t *testing.T) {
	opts := buildOptions(llm.CompletionRequest{NumCtx: 8192, MaxTokens: 4096, Temperature: 0.2})
	assert.Equal(t, 8192, opts["num_ctx"])
	assert.Equal(t, 4096, opts["num_predict"])

	opts = buildOptions(llm.CompletionRequest{})
	assert.NotContains(t, opts, "num_ctx")
	assert.NotContains(t, opts, "num_predict")
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestCompleteAgainstServer(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"{\"plan\":[]}"},"done":true,"done_reason":"stop","prompt_eval_count":42,"eval_count":7}`))
	}))
	defer srv.Close()

	c := NewOllamaClientWithModel(srv.URL, "m")
	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewSystemMessage("sys"), llm.NewUserMessage("hi")},
		NumCtx:    4096,
		MaxTokens: 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"plan":[]}`, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, llm.Usage{InputTokens: 42, OutputTokens: 7}, resp.Usage)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.InDelta(t, 4096, got.Options["num_ctx"], 0)
	assert.InDelta(t, 1024, got.Options["num_predict"], 0)
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"busy"}`))
	}))
	defer srv.Close()

	c := NewOllamaClientWithModel(srv.URL, "m")
	_, err := c.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("x")}})
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeTransient, llmerrors.TypeOf(err))
}

func TestCompleteEmptyMessages(t *testing.T) {
	c := NewOllamaClientWithModel(defaultHost, "m")
	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}
