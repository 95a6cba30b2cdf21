package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder whose collectors are registered with reg.
// A nil reg registers nothing, which is useful in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of model requests by model, status and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in model requests",
			},
			[]string{"model", "type"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_transport_retries_total",
				Help: "Total number of transport-level retries of model requests",
			},
			[]string{"model", "error_type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// ObserveRequest records metrics for a completed model request.
func (p *PrometheusRecorder) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncRetry counts a transport-level retry.
func (p *PrometheusRecorder) IncRetry(model, errorType string) {
	p.retriesTotal.WithLabelValues(model, errorType).Inc()
}
