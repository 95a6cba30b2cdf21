package dialog

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by DefaultConfig.
const (
	DefaultModel       = "deepseek-chat"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
	DefaultMaxRetries  = 5
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Config holds the fixed settings of one orchestrator.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float32

	// MaxRetries bounds driver retries per round. Zero disables retry.
	MaxRetries int
	// BaseDelay is the backoff before the first retry of a round; it doubles per retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff. Zero leaves growth uncapped.
	MaxDelay time.Duration

	// KeepPartial attaches the conversation built so far to a failed ExchangeError.
	KeepPartial bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		MaxRetries:  DefaultMaxRetries,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be between 0.0 and 2.0, got %v", c.Temperature))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries))
	}
	if c.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay cannot be negative, got %s", c.BaseDelay))
	}
	if c.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("max delay cannot be negative, got %s", c.MaxDelay))
	}
	return errors.Join(errs...)
}

// Params returns the model parameters carried by c.
func (c Config) Params() ModelParams {
	return ModelParams{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// Backoff returns the driver retry schedule carried by c.
func (c Config) Backoff() Backoff {
	return Backoff{Base: c.BaseDelay, Max: c.MaxDelay}
}
