// Package retry provides transport-level retry with exponential backoff for model clients.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"llmdialog/pkg/llm/middleware/circuit"
	"llmdialog/pkg/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `mapstructure:"max_attempts"   json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `mapstructure:"initial_delay"  json:"initial_delay"`  // Delay before the first retry
	MaxDelay      time.Duration `mapstructure:"max_delay"      json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `mapstructure:"backoff_factor" json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `mapstructure:"jitter"         json:"jitter"`         // Add ±10% random jitter
}

// DefaultConfig mirrors the chat service's recommended client policy:
// one initial attempt plus five retries, 500ms doubling, capped at 30s.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   6,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        false,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// terminalPatterns mark unclassified errors that will never succeed on retry.
//
//nolint:gochecknoglobals // read-only lookup table
var terminalPatterns = []string{
	"400", "401", "403", "404",
	"unauthorized", "forbidden", "invalid api key",
}

// ShouldRetry is the default classifier. It is a blocklist: anything not known to be
// terminal is retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; a per-request DeadlineExceeded is still worth retrying.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Let the breaker own recovery.
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range terminalPatterns {
		if strings.Contains(errStr, p) {
			return false
		}
	}
	return true
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier

	// OnRetry, when set, is called before each retry with the upcoming attempt number,
	// the backoff delay and the error that triggered it.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before the given attempt number (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	raw := float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2))
	delay := p.Config.MaxDelay
	if p.Config.MaxDelay <= 0 || raw < float64(p.Config.MaxDelay) {
		if raw >= float64(math.MaxInt64) {
			delay = time.Duration(math.MaxInt64)
		} else {
			delay = time.Duration(raw)
		}
	}

	if p.Config.Jitter && delay > 0 {
		spread := float64(delay) * 0.1
		delay += time.Duration((rand.Float64()*2 - 1) * spread) //nolint:gosec // jitter, not crypto
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
