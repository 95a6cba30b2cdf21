package circuit

import (
	"context"

	"llmdialog/pkg/llm"
)

// Middleware returns a middleware function that wraps a model client with circuit breaker logic.
// While the circuit is OPEN requests are rejected without reaching the underlying client.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}

				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}
