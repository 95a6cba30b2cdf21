package retry

import (
	"context"
	"fmt"
	"time"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llmerrors"
)

// Middleware returns a middleware function that wraps a model client with retry logic.
// It retries failed requests according to the policy with exponential backoff. When a
// retryable error survives every attempt it is reported as ServiceUnavailable so callers
// above the transport never retry it again.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						if policy.OnRetry != nil {
							policy.OnRetry(attempt, delay, lastErr)
						}
						if delay > 0 {
							timer := time.NewTimer(delay)
							select {
							case <-ctx.Done():
								timer.Stop()
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-timer.C:
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}

					lastErr = err

					if !policy.ShouldRetry(err) {
						return llm.CompletionResponse{}, err
					}
				}

				if lastErr == nil {
					return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeUnknown, "retry policy allows no attempts")
				}
				return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
