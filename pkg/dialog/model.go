package dialog

import (
	"context"
)

// ModelParams are passed through unchanged to the model on every call.
type ModelParams struct {
	Model       string
	MaxTokens   int
	Temperature float32
}

// Model produces one assistant reply for a full conversation.
//
// Implementations own transport, authentication and transient-error retry. Any error
// returned here ends the exchange. Implementations shared between orchestrators must
// be safe for concurrent use.
type Model interface {
	Complete(ctx context.Context, dialog []Message, params ModelParams) (string, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, dialog []Message, params ModelParams) (string, error)

// Complete calls f.
func (f ModelFunc) Complete(ctx context.Context, dialog []Message, params ModelParams) (string, error) {
	return f(ctx, dialog, params)
}
