// Package metrics exports exchange-level metrics and reads aggregated usage back
// from a Prometheus server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llmdialog/pkg/dialog"
)

// ResultCompleted labels exchanges that ended without error.
const ResultCompleted = "completed"

// ExchangeObserver implements dialog.Observer with Prometheus collectors.
// One observer may be shared by every orchestrator in a process.
type ExchangeObserver struct {
	exchangesTotal *prometheus.CounterVec
	rounds         prometheus.Histogram
	driverRetries  prometheus.Counter
	backoffSeconds prometheus.Histogram
	modelDuration  *prometheus.HistogramVec
}

var _ dialog.Observer = (*ExchangeObserver)(nil)

// NewExchangeObserver registers the exchange collectors with reg.
// A nil reg registers nothing.
func NewExchangeObserver(reg prometheus.Registerer) *ExchangeObserver {
	factory := promauto.With(reg)
	return &ExchangeObserver{
		exchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialog_exchanges_total",
				Help: "Finished exchanges by result",
			},
			[]string{"result"},
		),
		rounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialog_exchange_rounds",
				Help:    "Rounds that received a model reply per exchange",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),
		driverRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dialog_driver_retries_total",
				Help: "Driver retries after recoverable failures",
			},
		),
		backoffSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dialog_driver_backoff_seconds",
				Help:    "Backoff slept before each driver retry",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
			},
		),
		modelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dialog_model_turn_duration_seconds",
				Help:    "Duration of model turns including transport retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

// ExchangeStarted implements dialog.Observer.
func (o *ExchangeObserver) ExchangeStarted(string) {}

// DriverRetry implements dialog.Observer.
func (o *ExchangeObserver) DriverRetry(_ string, _, _ int, delay time.Duration) {
	o.driverRetries.Inc()
	o.backoffSeconds.Observe(delay.Seconds())
}

// ModelCompleted implements dialog.Observer.
func (o *ExchangeObserver) ModelCompleted(_ string, _ int, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.modelDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ExchangeFinished implements dialog.Observer.
func (o *ExchangeObserver) ExchangeFinished(_ string, rounds int, _ time.Duration, err error) {
	o.exchangesTotal.WithLabelValues(Result(err)).Inc()
	o.rounds.Observe(float64(rounds))
}

// Result returns the exchange result label for err.
func Result(err error) string {
	if err == nil {
		return ResultCompleted
	}
	if kind := dialog.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "unknown"
}
