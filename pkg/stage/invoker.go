// Package stage performs single oracle calls on behalf of pipeline stages.
package stage

import (
	"context"
	"fmt"
	"strings"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/config"
	"agentflow/pkg/event"
	"agentflow/pkg/logx"
	"agentflow/pkg/utils"
)

// PreviewLimit bounds each side of a token_limit_preview event.
const PreviewLimit = 1500

// ClientSource returns the oracle client configured for a stage.
type ClientSource interface {
	ClientForStage(stage string) (llm.LLMClient, error)
}

// Limits is a stage's token window.
type Limits struct {
	NumCtx     int
	NumPredict int
}

// Usage is the token accounting of one call.
type Usage struct {
	Stage        string `json:"stage"`
	Client       string `json:"client"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

type limitPreview struct {
	RequestPreview  string `json:"request_preview"`
	ResponsePreview string `json:"response_preview"`
}

// Invoker calls a stage's client with the stage's limits and reports usage.
// Usage never affects the result.
type Invoker struct {
	clients     ClientSource
	sink        event.Sink
	logger      *logx.Logger
	cfg         config.Config
	temperature float32
}

// NewInvoker creates an invoker that emits usage events on sink.
func NewInvoker(clients ClientSource, cfg config.Config, sink event.Sink) *Invoker {
	if sink == nil {
		sink = event.Discard
	}
	return &Invoker{
		clients:     clients,
		sink:        sink,
		logger:      logx.NewLogger("stage"),
		cfg:         cfg,
		temperature: float32(cfg.Oracle.Temperature),
	}
}

// Limits returns the token window for stage.
func (i *Invoker) Limits(stage string) Limits {
	sc := i.cfg.StageLimits(stage)
	return Limits{NumCtx: sc.NumCtx, NumPredict: sc.NumPredict}
}

// Invoke sends messages for stage and returns the trimmed response text.
func (i *Invoker) Invoke(ctx context.Context, stage string, messages []llm.CompletionMessage) (string, error) {
	client, err := i.clients.ClientForStage(stage)
	if err != nil {
		return "", fmt.Errorf("no client for stage %s: %w", stage, err)
	}
	limits := i.Limits(stage)

	logx.DebugFlow(ctx, "stage", stage, "invoke", fmt.Sprintf("%d messages", len(messages)))
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		NumCtx:      limits.NumCtx,
		MaxTokens:   limits.NumPredict,
		Temperature: i.temperature,
		Stage:       stage,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)

	usage := Usage{
		Stage:        stage,
		Client:       client.GetModelName(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	i.sink.Emit(event.KindTokenUsage, usage)
	i.checkLimits(usage, limits, messages, text)
	return text, nil
}

func (i *Invoker) checkLimits(u Usage, l Limits, messages []llm.CompletionMessage, response string) {
	atCtx := l.NumCtx > 0 && u.InputTokens >= l.NumCtx
	atPredict := l.NumPredict > 0 && u.OutputTokens >= l.NumPredict
	if !atCtx && !atPredict {
		return
	}

	msg := fmt.Sprintf("Token limit reached or exceeded (client=%s):", u.Client)
	if atCtx {
		msg += fmt.Sprintf(" input_tokens=%d >= num_ctx=%d", u.InputTokens, l.NumCtx)
	}
	if atPredict {
		msg += fmt.Sprintf(" output_tokens=%d >= num_predict=%d", u.OutputTokens, l.NumPredict)
	}
	i.logger.Warn("%s stage %s", msg, u.Stage)
	i.sink.Emit(event.KindError, msg)
	i.sink.Emit(event.KindTokenLimitPreview, limitPreview{
		RequestPreview:  utils.Truncate(joinMessages(messages), PreviewLimit, ""),
		ResponsePreview: utils.Truncate(response, PreviewLimit, ""),
	})
}

func joinMessages(messages []llm.CompletionMessage) string {
	parts := make([]string, len(messages))
	for n, m := range messages {
		parts[n] = string(m.Role) + ": " + m.Content
	}
	return strings.Join(parts, "\n\n")
}

// Messages builds the usual system plus user pair.
func Messages(system, user string) []llm.CompletionMessage {
	return []llm.CompletionMessage{llm.NewSystemMessage(system), llm.NewUserMessage(user)}
}
