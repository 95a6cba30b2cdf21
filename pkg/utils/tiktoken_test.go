package utils

import (
	"strings"
	"testing"

	"llmdialog/pkg/llm"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"deepseek-chat", "deepseek-reasoner", "gpt-4", "gpt-3.5-turbo", "unknown-model"} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewTokenCounter(model)
			if err != nil {
				t.Fatalf("NewTokenCounter(%s) failed: %v", model, err)
			}
			if counter == nil {
				t.Fatalf("NewTokenCounter(%s) returned nil counter", model)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("deepseek-chat")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"This is a longer sentence with more words.", 8, 12},
		{strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.text[:min(len(tt.text), 20)], func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountTokensNilCounterFallsBack(t *testing.T) {
	var counter *TokenCounter
	if got := counter.CountTokens("12345678"); got != 2 {
		t.Errorf("expected character estimate of 2, got %d", got)
	}
}

func TestCountMessages(t *testing.T) {
	counter, err := NewTokenCounter("deepseek-chat")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	if got := counter.CountMessages(nil); got != 0 {
		t.Errorf("expected 0 for no messages, got %d", got)
	}

	msgs := []llm.CompletionMessage{
		llm.NewUserMessage("Hello"),
		llm.NewAssistantMessage("Hello world"),
	}
	content := counter.CountTokens("Hello") + counter.CountTokens("Hello world")
	want := content + 2*perMessageOverhead + replyPriming
	if got := counter.CountMessages(msgs); got != want {
		t.Errorf("CountMessages = %d, want %d", got, want)
	}
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	if tokens < 2 || tokens > 3 {
		t.Errorf("CountTokensSimple(\"Hello world\") = %d, want between 2 and 3", tokens)
	}
	if CountMessagesSimple([]llm.CompletionMessage{llm.NewUserMessage("Hello world")}) < tokens {
		t.Error("message count should include content tokens")
	}
}
