// Package agent builds oracle clients for pipeline stages.
//
// Every client is a provider adapter wrapped in the same middleware chain:
//
//	metrics -> retry -> pacing -> timeout -> provider
package agent

import (
	"fmt"
	"sync"
	"time"

	"agentflow/pkg/agent/internal/llmimpl/anthropic"
	"agentflow/pkg/agent/internal/llmimpl/google"
	"agentflow/pkg/agent/internal/llmimpl/ollama"
	"agentflow/pkg/agent/internal/llmimpl/openaiofficial"
	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/middleware/metrics"
	"agentflow/pkg/agent/middleware/resilience/pacing"
	"agentflow/pkg/agent/middleware/resilience/retry"
	"agentflow/pkg/agent/middleware/resilience/timeout"
	"agentflow/pkg/config"
	"agentflow/pkg/logx"
)

// LLMClientFactory creates per-model clients that share one pacer and one
// metrics recorder.
type LLMClientFactory struct {
	config   config.Config
	recorder metrics.Recorder
	pacer    *pacing.Pacer
	logger   *logx.Logger
	clients  map[string]llm.LLMClient
	// raw overrides provider construction. Tests use it to inject scripted clients.
	raw func(model string) (llm.LLMClient, error)
	mu  sync.Mutex
}

// NewLLMClientFactory creates a factory for cfg. A nil recorder disables metrics.
func NewLLMClientFactory(cfg config.Config, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	f := &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		pacer:    pacing.NewPacer(cfg.Oracle.RequestDelay.Std()),
		logger:   logx.NewLogger("oracle"),
		clients:  make(map[string]llm.LLMClient),
	}
	f.raw = f.newProviderClient
	return f
}

// WithRawClient replaces provider construction. The middleware chain still applies.
func (f *LLMClientFactory) WithRawClient(raw func(model string) (llm.LLMClient, error)) *LLMClientFactory {
	f.raw = raw
	return f
}

// ClientForStage returns the client for a stage's configured model.
func (f *LLMClientFactory) ClientForStage(stage string) (llm.LLMClient, error) {
	return f.Client(f.config.StageLimits(stage).Model)
}

// Client returns the shared client for model, creating it on first use.
func (f *LLMClientFactory) Client(model string) (llm.LLMClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[model]; ok {
		return c, nil
	}

	raw, err := f.raw(model)
	if err != nil {
		return nil, err
	}
	c := llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(retry.NewPolicy(f.retryConfig(), nil)),
		pacing.Middleware(f.pacer),
		timeout.Middleware(f.config.Oracle.Timeout.Std()),
	)
	f.clients[model] = c
	return c, nil
}

func (f *LLMClientFactory) retryConfig() retry.Config {
	rc := f.config.Retry
	return retry.Config{
		MaxAttempts:   rc.MaxAttempts,
		InitialDelay:  time.Duration(rc.InitialDelay),
		MaxDelay:      time.Duration(rc.MaxDelay),
		BackoffFactor: rc.BackoffFactor,
		Jitter:        rc.Jitter,
	}
}

func (f *LLMClientFactory) newProviderClient(model string) (llm.LLMClient, error) {
	provider := f.config.Oracle.Provider
	if provider == config.ProviderOllama {
		return ollama.NewOllamaClientWithModel(f.config.Oracle.Host, model), nil
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("api key for %s: %w", provider, err)
	}
	switch provider {
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(apiKey, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
