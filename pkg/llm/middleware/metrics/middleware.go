package metrics

import (
	"context"
	"errors"
	"time"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llm/middleware/circuit"
	"llmdialog/pkg/llmerrors"
	"llmdialog/pkg/logx"
	"llmdialog/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor trusts the usage block reported by the service and falls back
// to a tiktoken estimate when the service omitted it.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	return utils.CountMessagesSimple(req.Messages), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for model calls.
// It tracks request latency, token usage, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				if req.Model != "" {
					model = req.Model
				}

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(model, promptTokens, completionTokens, err == nil, ErrorType(err), duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("model request: model=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

// ErrorType classifies errors for metrics labeling.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *circuit.Error
	var llmErr *llmerrors.Error
	switch {
	case errors.As(err, &circuitErr):
		return "circuit_breaker"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &llmErr):
		return llmErr.Type.String()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
