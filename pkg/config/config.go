// Package config loads llmdialog settings from a YAML or JSON file with
// LLMDIALOG_* environment overrides.
//
// Precedence, highest first: environment, config file, built-in defaults.
// Nested keys map to environment names by upper-casing and replacing dots with
// underscores, so orchestration.max_retries becomes LLMDIALOG_ORCHESTRATION_MAX_RETRIES.
//
//	cfg, err := config.Load("llmdialog.yaml")
//	orch, err := dialog.New(driver, model, cfg.DialogConfig())
//
// There is no package-level config instance; callers pass the loaded Config around.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"llmdialog/pkg/dialog"
	"llmdialog/pkg/llm"
	"llmdialog/pkg/llm/middleware/circuit"
	"llmdialog/pkg/llm/middleware/retry"
	"llmdialog/pkg/logx"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LLMDIALOG"

// DefaultAPIKeyEnv names the variable holding the chat service key.
const DefaultAPIKeyEnv = "DEEPSEEK_API_KEY"

// Log formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the complete runtime configuration.
type Config struct {
	Model         ModelConfig         `mapstructure:"model"         json:"model"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration" json:"orchestration"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"    json:"resilience"`
	Metrics       MetricsConfig       `mapstructure:"metrics"       json:"metrics"`
	Debug         DebugConfig         `mapstructure:"debug"         json:"debug"`
	Log           LogConfig           `mapstructure:"log"           json:"log"`
}

// ModelConfig selects the model and the endpoint serving it.
type ModelConfig struct {
	Name        string  `mapstructure:"name"        json:"name"`
	MaxTokens   int     `mapstructure:"max_tokens"  json:"max_tokens"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	BaseURL     string  `mapstructure:"base_url"    json:"base_url"`
	APIKeyEnv   string  `mapstructure:"api_key_env" json:"api_key_env"` // Secret or env var holding the key
}

// OrchestrationConfig controls driver retry and batch runs.
type OrchestrationConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"  json:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"   json:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"    json:"max_delay"` // 0 = uncapped
	KeepPartial bool          `mapstructure:"keep_partial" json:"keep_partial"`
	Concurrency int           `mapstructure:"concurrency"  json:"concurrency"` // Parallel exchanges in batch mode
}

// ResilienceConfig configures the transport middleware around the model client.
type ResilienceConfig struct {
	Retry          retry.Config   `mapstructure:"retry"           json:"retry"`
	CircuitBreaker circuit.Config `mapstructure:"circuit_breaker" json:"circuit_breaker"`
	Timeout        time.Duration  `mapstructure:"timeout"         json:"timeout"` // Per request; 0 disables
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr"    json:"addr"`
}

// DebugConfig mirrors the DEBUG and DEBUG_DOMAINS environment switches.
type DebugConfig struct {
	Enabled bool     `mapstructure:"enabled" json:"enabled"`
	Domains []string `mapstructure:"domains" json:"domains"`
}

// LogConfig selects the log encoding.
type LogConfig struct {
	Format string `mapstructure:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	d := dialog.DefaultConfig()
	return Config{
		Model: ModelConfig{
			Name:        d.Model,
			MaxTokens:   d.MaxTokens,
			Temperature: d.Temperature,
			BaseURL:     llm.DefaultBaseURL,
			APIKeyEnv:   DefaultAPIKeyEnv,
		},
		Orchestration: OrchestrationConfig{
			MaxRetries:  d.MaxRetries,
			BaseDelay:   d.BaseDelay,
			Concurrency: 4,
		},
		Resilience: ResilienceConfig{
			Retry:          retry.DefaultConfig,
			CircuitBreaker: circuit.DefaultConfig,
			Timeout:        2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Format: LogFormatJSON,
		},
	}
}

// setDefaults registers every key so that environment overrides work without a file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.base_url", d.Model.BaseURL)
	v.SetDefault("model.api_key_env", d.Model.APIKeyEnv)

	v.SetDefault("orchestration.max_retries", d.Orchestration.MaxRetries)
	v.SetDefault("orchestration.base_delay", d.Orchestration.BaseDelay)
	v.SetDefault("orchestration.max_delay", d.Orchestration.MaxDelay)
	v.SetDefault("orchestration.keep_partial", d.Orchestration.KeepPartial)
	v.SetDefault("orchestration.concurrency", d.Orchestration.Concurrency)

	v.SetDefault("resilience.retry.max_attempts", d.Resilience.Retry.MaxAttempts)
	v.SetDefault("resilience.retry.initial_delay", d.Resilience.Retry.InitialDelay)
	v.SetDefault("resilience.retry.max_delay", d.Resilience.Retry.MaxDelay)
	v.SetDefault("resilience.retry.backoff_factor", d.Resilience.Retry.BackoffFactor)
	v.SetDefault("resilience.retry.jitter", d.Resilience.Retry.Jitter)
	v.SetDefault("resilience.circuit_breaker.failure_threshold", d.Resilience.CircuitBreaker.FailureThreshold)
	v.SetDefault("resilience.circuit_breaker.success_threshold", d.Resilience.CircuitBreaker.SuccessThreshold)
	v.SetDefault("resilience.circuit_breaker.timeout", d.Resilience.CircuitBreaker.Timeout)
	v.SetDefault("resilience.timeout", d.Resilience.Timeout)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("debug.enabled", d.Debug.Enabled)
	v.SetDefault("debug.domains", []string{})

	v.SetDefault("log.format", d.Log.Format)
}

// Load reads path (YAML or JSON by extension) over the defaults, then applies
// environment overrides. An empty path looks for llmdialog.{yaml,json} in the
// working directory and is not an error when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("llmdialog")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		logx.Debug(context.Background(), "config", "no config file found, using defaults and environment")
	} else {
		logx.Debug(context.Background(), "config", "loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills fields a file may have blanked out explicitly.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Model.Name == "" {
		c.Model.Name = d.Model.Name
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = d.Model.BaseURL
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = d.Model.APIKeyEnv
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Orchestration.Concurrency <= 0 {
		c.Orchestration.Concurrency = 1
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	errs := []error{}
	if err := c.DialogConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Model.BaseURL != "" && !strings.HasPrefix(c.Model.BaseURL, "http://") && !strings.HasPrefix(c.Model.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("model.base_url must be an http(s) URL, got %q", c.Model.BaseURL))
	}
	if c.Orchestration.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("orchestration.concurrency must be at least 1, got %d", c.Orchestration.Concurrency))
	}
	if c.Resilience.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resilience.retry.max_attempts must be at least 1, got %d", c.Resilience.Retry.MaxAttempts))
	}
	if c.Resilience.Retry.InitialDelay < 0 || c.Resilience.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("resilience.retry delays must not be negative"))
	}
	if c.Resilience.Retry.BackoffFactor != 0 && c.Resilience.Retry.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("resilience.retry.backoff_factor must be >= 1, got %g", c.Resilience.Retry.BackoffFactor))
	}
	if c.Resilience.CircuitBreaker.FailureThreshold < 1 || c.Resilience.CircuitBreaker.SuccessThreshold < 1 {
		errs = append(errs, errors.New("resilience.circuit_breaker thresholds must be at least 1"))
	}
	if c.Resilience.Timeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.timeout must not be negative, got %s", c.Resilience.Timeout))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	switch c.Log.Format {
	case LogFormatJSON, LogFormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", LogFormatJSON, LogFormatConsole, c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DialogConfig returns the orchestrator settings.
func (c *Config) DialogConfig() dialog.Config {
	return dialog.Config{
		Model:       c.Model.Name,
		MaxTokens:   c.Model.MaxTokens,
		Temperature: c.Model.Temperature,
		MaxRetries:  c.Orchestration.MaxRetries,
		BaseDelay:   c.Orchestration.BaseDelay,
		MaxDelay:    c.Orchestration.MaxDelay,
		KeepPartial: c.Orchestration.KeepPartial,
	}
}

// ApplyLogging configures logx from the debug and log sections.
func (c *Config) ApplyLogging() {
	logx.SetDebugConfig(c.Debug.Enabled, c.Debug.Domains)
	if c.Log.Format == LogFormatConsole {
		logx.UseConsole(nil)
	}
}
