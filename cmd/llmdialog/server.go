package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmdialog/pkg/llm/middleware/circuit"
	"llmdialog/pkg/logx"
)

// newMux serves /metrics from g and /healthz from the breaker state.
func newMux(g prometheus.Gatherer, breaker circuit.Breaker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthHandler(breaker))
	return mux
}

// healthHandler reports 200 unless the model circuit breaker is open.
func healthHandler(breaker circuit.Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		if state := breaker.GetState(); state == circuit.Open {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "model circuit %s\n", state)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}
}

// serveMetrics starts the metrics server in the background and returns a stop function.
func serveMetrics(addr string, g prometheus.Gatherer, breaker circuit.Breaker) func() {
	logger := logx.NewLogger("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(g, breaker),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown: %v", err)
		}
	}
}
