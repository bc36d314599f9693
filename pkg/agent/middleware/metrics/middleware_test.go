package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
)

type fixedClient struct {
	resp llm.CompletionResponse
	err  error
}

func (f fixedClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return f.resp, f.err
}

func (f fixedClient) GetModelName() string { return "m1" }

func TestMiddlewareBackfillsUsage(t *testing.T) {
	rec := NewInternalRecorder()
	client := llm.Chain(fixedClient{resp: llm.CompletionResponse{Content: "hello world"}}, Middleware(rec, nil, nil))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Stage:    "planner",
		Messages: []llm.CompletionMessage{llm.NewUserMessage("plan the work please")},
	})
	require.NoError(t, err)
	assert.Positive(t, resp.Usage.InputTokens)
	assert.Positive(t, resp.Usage.OutputTokens)

	snap := rec.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "planner", snap[0].Stage)
	assert.Equal(t, int64(1), snap[0].Requests)
	assert.Equal(t, int64(resp.Usage.InputTokens), snap[0].PromptTokens)
}

func TestMiddlewareKeepsProviderUsage(t *testing.T) {
	rec := NewInternalRecorder()
	base := fixedClient{resp: llm.CompletionResponse{Content: "x", Usage: llm.Usage{InputTokens: 100, OutputTokens: 7}}}
	client := llm.Chain(base, Middleware(rec, nil, nil))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{Stage: "coder"})
	require.NoError(t, err)
	assert.Equal(t, llm.Usage{InputTokens: 100, OutputTokens: 7}, resp.Usage)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	rec := NewInternalRecorder()

	ok := llm.Chain(fixedClient{resp: llm.CompletionResponse{Content: "x", Usage: llm.Usage{InputTokens: 3, OutputTokens: 2}}}, Middleware(Multi(prom, rec), nil, nil))
	bad := llm.Chain(fixedClient{err: llmerrors.FromStatus(503, errors.New("down"))}, Middleware(Multi(prom, rec), nil, nil))

	_, err := ok.Complete(context.Background(), llm.CompletionRequest{Stage: "final"})
	require.NoError(t, err)
	_, err = bad.Complete(context.Background(), llm.CompletionRequest{Stage: "final"})
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("m1", "final", "success", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("m1", "final", "error", "transient")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(prom.tokensTotal.WithLabelValues("m1", "final", "prompt")), 0)

	snap := rec.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(2), snap[0].Requests)
	assert.Equal(t, int64(1), snap[0].Errors)
}
