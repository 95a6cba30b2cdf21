// Package timeout provides per-request timeout middleware for model clients.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llmerrors"
)

// Middleware returns a middleware function that bounds each request to duration.
// A request that hits its own deadline while the caller's context is still live is
// reported as a transient error so the retry layer above can try again.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
					return resp, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err,
						fmt.Sprintf("request timed out after %s", duration))
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
