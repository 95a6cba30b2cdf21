// Package metrics provides metrics recording for model client operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording model call metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed model request.
	ObserveRequest(
		model string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncRetry counts a transport-level retry of a model request.
	IncRetry(model, errorType string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// IncRetry does nothing in the no-op recorder.
func (n *NoopRecorder) IncRetry(_, _ string) {}

// multiRecorder fans out to several recorders.
type multiRecorder []Recorder

// Tee returns a Recorder that forwards every observation to all of recorders.
func Tee(recorders ...Recorder) Recorder {
	return multiRecorder(recorders)
}

func (m multiRecorder) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	for _, r := range m {
		r.ObserveRequest(model, promptTokens, completionTokens, success, errorType, duration)
	}
}

func (m multiRecorder) IncRetry(model, errorType string) {
	for _, r := range m {
		r.IncRetry(model, errorType)
	}
}
