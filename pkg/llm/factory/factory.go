// Package factory builds model clients with the resilience middleware chain applied.
package factory

import (
	"fmt"
	"net/http"
	"time"

	"llmdialog/pkg/config"
	"llmdialog/pkg/dialog"
	"llmdialog/pkg/llm"
	"llmdialog/pkg/llm/internal/openaicompat"
	"llmdialog/pkg/llm/middleware/circuit"
	"llmdialog/pkg/llm/middleware/logging"
	"llmdialog/pkg/llm/middleware/metrics"
	"llmdialog/pkg/llm/middleware/retry"
	"llmdialog/pkg/llm/middleware/timeout"
	"llmdialog/pkg/llm/middleware/validation"
	"llmdialog/pkg/logx"
)

// Factory creates model clients that share one circuit breaker and metrics recorder.
// Clients it returns are safe for concurrent use by independent exchanges.
type Factory struct {
	cfg        config.Config
	secrets    *config.Secrets
	recorder   metrics.Recorder
	breaker    circuit.Breaker
	httpClient *http.Client
	logger     *logx.Logger
	apiKey     string
}

// Option customizes a Factory.
type Option func(*Factory)

// WithRecorder sets the metrics recorder. Defaults to a no-op recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(f *Factory) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithSecrets resolves the API key through s before the environment.
func WithSecrets(s *config.Secrets) Option {
	return func(f *Factory) { f.secrets = s }
}

// WithAPIKey bypasses secret lookup.
func WithAPIKey(key string) Option {
	return func(f *Factory) { f.apiKey = key }
}

// WithHTTPClient sets the transport used by the chat-completions client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

// WithLogger sets the logger for per-request summaries and retry warnings.
func WithLogger(l *logx.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a factory for cfg.
func New(cfg config.Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:      cfg,
		recorder: metrics.Nop(),
		breaker:  circuit.New(cfg.Resilience.CircuitBreaker),
		logger:   logx.NewLogger("llm"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Breaker exposes the shared circuit breaker, mainly for status reporting.
func (f *Factory) Breaker() circuit.Breaker {
	return f.breaker
}

// CreateClient returns the configured model client wrapped in the middleware chain.
func (f *Factory) CreateClient() (llm.LLMClient, error) {
	apiKey := f.apiKey
	if apiKey == "" {
		key, err := f.secrets.APIKey(&f.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve API key for %s: %w", f.cfg.Model.Name, err)
		}
		apiKey = key
	}

	raw := openaicompat.New(openaicompat.Options{
		APIKey:     apiKey,
		BaseURL:    f.cfg.Model.BaseURL,
		Model:      f.cfg.Model.Name,
		HTTPClient: f.httpClient,
	})

	return f.wrap(raw), nil
}

// CreateModel returns CreateClient adapted to dialog.Model.
func (f *Factory) CreateModel() (*dialog.LLMModel, error) {
	client, err := f.CreateClient()
	if err != nil {
		return nil, err
	}
	return dialog.NewLLMModel(client), nil
}

// wrap builds the middleware chain in this order:
// Metrics -> Logging -> CircuitBreaker -> Retry -> EmptyResponse -> Timeout -> raw client.
func (f *Factory) wrap(raw llm.LLMClient) llm.LLMClient {
	model := raw.GetModelName()

	policy := retry.NewPolicy(f.cfg.Resilience.Retry, nil) // Use default classifier
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		errType := metrics.ErrorType(err)
		f.recorder.IncRetry(model, errType)
		f.logger.Warn("model request failed (%s), attempt %d/%d in %s: %v",
			errType, attempt, policy.Config.MaxAttempts, delay, err)
	}

	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, nil, f.logger),
		logging.Middleware(),
		circuit.Middleware(f.breaker),
		retry.Middleware(policy),
		validation.EmptyResponseMiddleware(),
	}
	if f.cfg.Resilience.Timeout > 0 {
		middlewares = append(middlewares, timeout.Middleware(f.cfg.Resilience.Timeout))
	}

	return llm.Chain(raw, middlewares...)
}
