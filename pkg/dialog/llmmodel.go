package dialog

import (
	"context"
	"errors"
	"fmt"

	"llmdialog/pkg/llm"
)

// LLMModel adapts an llm.LLMClient, usually a middleware chain, to the Model interface.
type LLMModel struct {
	client llm.LLMClient
}

var _ Model = (*LLMModel)(nil)

// NewLLMModel wraps client.
func NewLLMModel(client llm.LLMClient) *LLMModel {
	return &LLMModel{client: client}
}

// Complete sends the whole dialog and returns the reply text.
func (m *LLMModel) Complete(ctx context.Context, dialog []Message, params ModelParams) (string, error) {
	if m.client == nil {
		return "", errors.New("no model client configured")
	}

	req := llm.CompletionRequest{
		Messages:    make([]llm.CompletionMessage, len(dialog)),
		Model:       params.Model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
	for i, msg := range dialog {
		req.Messages[i] = llm.CompletionMessage{Role: llm.CompletionRole(msg.Role), Content: msg.Content}
	}

	resp, err := m.client.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.modelName(params), err)
	}
	return resp.Content, nil
}

// Ask sends a single user message outside of any orchestrated exchange.
func (m *LLMModel) Ask(ctx context.Context, prompt string, params ModelParams) (string, error) {
	return m.Complete(ctx, []Message{UserMessage(prompt)}, params)
}

// Send sends an existing conversation and returns the reply without modifying conv.
func (m *LLMModel) Send(ctx context.Context, conv *Conversation, params ModelParams) (string, error) {
	return m.Complete(ctx, conv.Messages(), params)
}

func (m *LLMModel) modelName(params ModelParams) string {
	if params.Model != "" {
		return params.Model
	}
	return m.client.GetModelName()
}
