// Package logx provides structured logging with context-aware, domain-filtered debug logging.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level names a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // Which domains to enable debug for (nil = all)
}

// Logger writes leveled, printf-style messages tagged with a component or exchange ID.
type Logger struct {
	id string
	zl zerolog.Logger
}

// switchWriter lets SetOutput redirect loggers that were created earlier.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	w := s.w
	s.mu.RUnlock()
	return w.Write(p) //nolint:wrapcheck // io.Writer passthrough
}

//nolint:gochecknoglobals // Process-wide logging sink and debug switches, same as stderr itself
var (
	sink = &switchWriter{w: os.Stderr}

	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	defaultLogger = NewLogger("system")
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// DEBUG_DOMAINS=dialog,llm
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger creates a logger tagged with id.
func NewLogger(id string) *Logger {
	return &Logger{
		id: id,
		zl: zerolog.New(sink).With().Timestamp().Str("id", id).Logger(),
	}
}

// SetOutput redirects all loggers to w. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	sink.mu.Lock()
	sink.w = w
	sink.mu.Unlock()
}

// UseConsole switches to human-readable console output on w.
func UseConsole(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	SetOutput(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
}

// SetDebugConfig configures global debug logging. An empty domain list enables all domains.
func SetDebugConfig(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool, len(domains))
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelWarn:
		ev = l.zl.Warn()
	case LevelError:
		ev = l.zl.Error()
	default:
		ev = l.zl.Info()
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

// Debug logs when debug logging is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs state transition information.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

// With returns a child logger carrying an extra structured field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{
		id: l.id,
		zl: l.zl.With().Str(key, value).Logger(),
	}
}

func (l *Logger) GetID() string {
	return l.id
}

// WithID returns a logger with a different id and the same output.
func (l *Logger) WithID(id string) *Logger {
	return NewLogger(id)
}

type ctxKey struct{}

// WithID stores a correlation id (usually an exchange id) in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFrom returns the correlation id stored in ctx, or "unknown".
func IDFrom(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// Debug logs a debug message with context and domain filtering.
//
// Environment variable control:
//
//	DEBUG=1                          # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=dialog     # Enable debug only for the dialog domain
//	DEBUG=1 DEBUG_DOMAINS=dialog,llm # Enable debug for multiple domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	logger := NewLogger(IDFrom(ctx))
	logger.zl.Debug().Str("domain", domain).Msg(fmt.Sprintf(format, args...))
}

// DebugFlow logs workflow step information with context and domain.
func DebugFlow(ctx context.Context, domain, step, status string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	Debug(ctx, domain, "Flow %s: %s%s", step, status, extraInfo)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "load config") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
