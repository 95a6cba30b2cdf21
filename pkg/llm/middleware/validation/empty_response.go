// Package validation provides response validation middleware for model clients.
package validation

import (
	"context"
	"strings"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llmerrors"
	"llmdialog/pkg/logx"
)

// EmptyResponseMiddleware returns a middleware that turns a successful call with blank
// content into an ErrorTypeEmptyResponse error. The error is retryable, so a retry layer
// placed above this middleware asks the service again.
func EmptyResponseMiddleware() llm.Middleware {
	logger := logx.NewLogger("empty-response-validator")

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}

				if strings.TrimSpace(resp.Content) == "" {
					logger.Warn("empty response from %s (stop_reason=%q, completion_tokens=%d)",
						next.GetModelName(), resp.StopReason, resp.Usage.CompletionTokens)
					return llm.CompletionResponse{}, llmerrors.NewError(
						llmerrors.ErrorTypeEmptyResponse,
						"model returned no content",
					)
				}
				return resp, nil
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
