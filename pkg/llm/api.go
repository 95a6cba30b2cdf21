// Package llm provides interfaces and types for chat-completion model clients.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the user side of the exchange.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message produced by the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "deepseek-chat"

	// DefaultMaxTokens is the default output token budget per completion.
	DefaultMaxTokens = 2048

	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.7

	// DefaultBaseURL is the DeepSeek API root. Requests go to <base>chat/completions.
	DefaultBaseURL = "https://api.deepseek.com/v1/"
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	Model       string // Overrides the client's model when non-empty
	MaxTokens   int
	Temperature float32
}

// Usage reports token accounting returned by the service, zero when unknown.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "stop", "length", ...
	Usage      Usage
}

// LLMClient defines the interface for language model interactions.
// Implementations must be safe for concurrent use; one client is typically shared by
// many conversations.
type LLMClient interface { //nolint:revive // Keep name for backward compatibility
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // Keep name for backward compatibility
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
