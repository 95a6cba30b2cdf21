// Package openaicompat implements llm.LLMClient against any OpenAI-compatible
// chat-completions endpoint (DeepSeek by default) using the official openai-go SDK.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"llmdialog/pkg/llm"
	"llmdialog/pkg/llmerrors"
)

// Client is a chat-completions client.
type Client struct {
	client openai.Client
	model  string
}

// Options configures New.
type Options struct {
	APIKey     string
	BaseURL    string       // Defaults to llm.DefaultBaseURL
	Model      string       // Defaults to llm.DefaultModel
	HTTPClient *http.Client // Optional
}

// New creates a client. The SDK's own retry loop is disabled; resilience is supplied by
// the middleware chain so every retry is visible to logging and metrics.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = llm.DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model := opts.Model
	if model == "" {
		model = llm.DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

// Complete sends the full message history and returns the first choice.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	model := in.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toParams(in.Messages),
		Temperature: openai.Float(widen(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices in response")
	}

	choice := resp.Choices[0]
	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// GetModelName returns the default model for this client.
func (c *Client) GetModelName() string {
	return c.model
}

func toParams(msgs []llm.CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for i := range msgs {
		switch msgs[i].Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msgs[i].Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(msgs[i].Content))
		default:
			out = append(out, openai.UserMessage(msgs[i].Content))
		}
	}
	return out
}

// classify maps SDK failures onto llmerrors types: HTTP status for API errors,
// transient for everything at the network layer.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.StatusCode, apiErr.Error(), fmt.Errorf("chat completion: %w", err))
	}
	return llmerrors.Classify(fmt.Errorf("chat completion: %w", err))
}

// widen converts t to the float64 with the same shortest decimal form, so 0.7
// is sent as 0.7 rather than 0.699999988079071.
func widen(t float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(t), 'g', -1, 32), 64)
	if err != nil {
		return float64(t)
	}
	return f
}
