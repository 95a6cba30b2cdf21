// Package logging provides request logging middleware for model clients.
package logging

import (
	"context"
	"time"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llmerrors"
	"llmdialog/pkg/logx"
)

const (
	// promptPreviewChars bounds the sanitized prompt included in debug logs.
	promptPreviewChars = 400
	// messageDumpChars bounds each message dumped after an empty response.
	messageDumpChars = 10000
)

// Middleware logs every completion at debug level under the "llm" domain and dumps the
// full request when the service returns an empty response. Errors are passed through unchanged.
func Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if n := len(req.Messages); n > 0 {
					logx.Debug(ctx, "llm", "request model=%s messages=%d last=%q",
						next.GetModelName(), n, llmerrors.SanitizePrompt(req.Messages[n-1].Content, promptPreviewChars))
				}

				start := time.Now()
				resp, err := next.Complete(ctx, req)
				elapsed := time.Since(start)

				switch {
				case err == nil:
					logx.Debug(ctx, "llm", "response in %s stop=%s tokens=%d/%d",
						elapsed, resp.StopReason, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
				case llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse):
					logEmptyResponseDebugInfo(ctx, req)
				default:
					logx.Debug(ctx, "llm", "request failed after %s: %v", elapsed, err)
				}

				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

func logEmptyResponseDebugInfo(ctx context.Context, req llm.CompletionRequest) {
	logger := logx.NewLogger(logx.IDFrom(ctx))

	logger.Error("empty response from model, dumping request (%d messages)", len(req.Messages))
	for i := range req.Messages {
		msg := &req.Messages[i]
		content := msg.Content
		if len(content) > messageDumpChars {
			content = content[:messageDumpChars] + " [truncated]"
		}
		logger.Error("message [%d] role=%s content=%s", i, msg.Role, content)
	}
	logger.Error("request temperature=%v max_tokens=%d model=%s", req.Temperature, req.MaxTokens, req.Model)
}
