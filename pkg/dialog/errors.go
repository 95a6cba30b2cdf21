package dialog

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by ExchangeError.Is.
var (
	ErrDriverUnrecoverable = errors.New("driver unrecoverable")
	ErrRetriesExhausted    = errors.New("driver retries exhausted")
	ErrModel               = errors.New("model error")
	ErrCanceled            = errors.New("exchange canceled")

	// ErrExchangeInProgress is returned by Run when the orchestrator is already running.
	ErrExchangeInProgress = errors.New("exchange already in progress")
)

// ErrorKind says which side ended an exchange and why.
type ErrorKind int

const (
	KindDriverUnrecoverable ErrorKind = iota + 1
	KindRetriesExhausted
	KindModel
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindDriverUnrecoverable:
		return "driver_unrecoverable"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindModel:
		return "model"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ExchangeError is the single error type returned by a failed exchange.
//
//nolint:govet // fields ordered for readability
type ExchangeError struct {
	Kind ErrorKind
	// Round is the 1-based round in which the exchange failed.
	Round int
	// Attempts counts driver invocations in the failing round.
	Attempts int
	// Detail is the driver's last diagnostic, empty for model and cancel failures.
	Detail string
	// Err is the model error or context error, nil for driver failures.
	Err error
	// Partial holds the conversation built before the failure when Config.KeepPartial is set.
	Partial *Conversation
}

func (e *ExchangeError) Error() string {
	switch e.Kind {
	case KindDriverUnrecoverable:
		return fmt.Sprintf("driver unrecoverable (round %d): %s", e.Round, e.Detail)
	case KindRetriesExhausted:
		return fmt.Sprintf("driver retries exhausted after %d attempts (round %d): %s", e.Attempts, e.Round, e.Detail)
	case KindModel:
		return fmt.Sprintf("model error (round %d): %v", e.Round, e.Err)
	case KindCanceled:
		return fmt.Sprintf("exchange canceled (round %d): %v", e.Round, e.Err)
	default:
		return fmt.Sprintf("exchange failed (round %d)", e.Round)
	}
}

// Unwrap exposes the model or context error.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *ExchangeError) Is(target error) bool {
	switch target { //nolint:errorlint // comparing sentinels
	case ErrDriverUnrecoverable:
		return e.Kind == KindDriverUnrecoverable
	case ErrRetriesExhausted:
		return e.Kind == KindRetriesExhausted
	case ErrModel:
		return e.Kind == KindModel
	case ErrCanceled:
		return e.Kind == KindCanceled
	default:
		return false
	}
}

// KindOf returns the ErrorKind of err, or zero when err is not an ExchangeError.
func KindOf(err error) ErrorKind {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Kind
	}
	return 0
}
