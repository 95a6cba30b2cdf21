// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"llmdialog/pkg/llm"
)

const (
	// perMessageOverhead approximates the role and separator tokens added to each chat message.
	perMessageOverhead = 4
	// replyPriming approximates the tokens that prime the assistant reply.
	replyPriming = 3
)

// TokenCounter provides token counting for chat models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// Every model is approximated with the GPT-4 (cl100k) encoding; DeepSeek publishes no tiktoken table.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}

	return count
}

// CountMessages estimates the prompt tokens for a chat request.
func (tc *TokenCounter) CountMessages(messages []llm.CompletionMessage) int {
	if len(messages) == 0 {
		return 0
	}
	total := replyPriming
	for i := range messages {
		total += perMessageOverhead + tc.CountTokens(messages[i].Content)
	}
	return total
}

//nolint:gochecknoglobals // codec tables are expensive to build and immutable
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

func sharedCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		// A nil counter falls back to character estimation.
		defaultCounter, _ = NewTokenCounter(llm.DefaultModel)
	})
	return defaultCounter
}

// CountTokensSimple counts tokens with a shared GPT-4 encoding counter.
func CountTokensSimple(text string) int {
	return sharedCounter().CountTokens(text)
}

// CountMessagesSimple estimates the prompt tokens for messages with the shared counter.
func CountMessagesSimple(messages []llm.CompletionMessage) int {
	return sharedCounter().CountMessages(messages)
}
