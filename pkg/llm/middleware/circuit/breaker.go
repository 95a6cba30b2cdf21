// Package circuit provides a circuit breaker that sheds load from a failing model service.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Probing whether the service recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int           `mapstructure:"success_threshold" json:"success_threshold"` // Successes needed to close from half-open
	Timeout          time.Duration `mapstructure:"timeout"           json:"timeout"`           // Wait before probing half-open
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	Timeout:          30 * time.Second,
}

// Error is returned when a request is rejected by an open circuit.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker defines the interface for circuit breaker implementations.
type Breaker interface {
	// Allow checks if a request should be allowed based on current state.
	Allow() bool

	// Record records the result (success/failure) of a request.
	Record(success bool)

	// GetState returns the current circuit breaker state.
	GetState() State

	// Reset manually resets the circuit breaker to closed state.
	Reset()
}

//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	config          Config
	now             func() time.Time
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a new circuit breaker with the given configuration.
func New(config Config) Breaker {
	return &breaker{
		config: config,
		now:    time.Now,
		state:  Closed,
	}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeIfCooledDown()
	return b.state != Open
}

func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// GetState applies the cool-down as well, so an idle breaker reads as half-open
// once Timeout has passed since the last failure.
func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeIfCooledDown()
	return b.state
}

// probeIfCooledDown moves an open breaker to half-open after Timeout. Callers hold mu.
func (b *breaker) probeIfCooledDown() {
	if b.state == Open && b.now().Sub(b.lastFailureTime) >= b.config.Timeout {
		b.state = HalfOpen
		b.successCount = 0
	}
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	case Open:
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		// Any failure while probing reopens immediately.
		b.state = Open
		b.successCount = 0
	case Open:
	}
}
