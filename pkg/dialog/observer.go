package dialog

import (
	"time"
)

// Observer receives exchange lifecycle events. Calls are made synchronously from the
// orchestrator goroutine; implementations shared between orchestrators must be safe
// for concurrent use.
type Observer interface {
	ExchangeStarted(id string)
	DriverRetry(id string, round, attempt int, delay time.Duration)
	ModelCompleted(id string, round int, elapsed time.Duration, err error)
	ExchangeFinished(id string, rounds int, elapsed time.Duration, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ExchangeStarted(string) {}
func (NopObserver) DriverRetry(string, int, int, time.Duration) {}
func (NopObserver) ModelCompleted(string, int, time.Duration, error) {}
func (NopObserver) ExchangeFinished(string, int, time.Duration, error) {}
