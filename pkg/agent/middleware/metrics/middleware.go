package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"agentflow/pkg/agent/llm"
	"agentflow/pkg/agent/llmerrors"
	"agentflow/pkg/logx"
	"agentflow/pkg/utils"
)

// UsageExtractor returns prompt and completion token counts for a call.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor trusts provider-reported usage and counts with
// tiktoken when the provider left it empty.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (int, int) {
	prompt, completion := resp.Usage.InputTokens, resp.Usage.OutputTokens
	if prompt == 0 {
		var sb strings.Builder
		for i := range req.Messages {
			sb.WriteString(req.Messages[i].Content)
			sb.WriteByte('\n')
		}
		prompt = utils.CountTokensSimple(sb.String())
	}
	if completion == 0 && resp.Content != "" {
		completion = utils.CountTokensSimple(resp.Content)
	}
	return prompt, completion
}

// Middleware records every call and back-fills resp.Usage when the
// provider did not report it.
func Middleware(recorder Recorder, extractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if extractor == nil {
		extractor = DefaultUsageExtractor
	}
	if recorder == nil {
		recorder = Nop()
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var prompt, completion int
				if err == nil {
					prompt, completion = extractor(req, resp)
					resp.Usage = llm.Usage{InputTokens: prompt, OutputTokens: completion}
				}
				recorder.ObserveRequest(next.GetModelName(), req.Stage, prompt, completion, err == nil, errorType(err), duration)

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error"
					}
					logger.Debug("oracle request: model=%s stage=%s tokens=%d+%d status=%s duration=%dms",
						next.GetModelName(), req.Stage, prompt, completion, status, duration.Milliseconds())
				}
				return resp, err //nolint:wrapcheck // pass-through
			},
			next.GetModelName,
		)
	}
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		var e *llmerrors.Error
		if errors.As(err, &e) {
			return e.Type.String()
		}
		return "unknown"
	}
}
