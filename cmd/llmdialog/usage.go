package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"llmdialog/pkg/llm/middleware/metrics"
	exchangemetrics "llmdialog/pkg/metrics"
)

// printUsage writes a per-model summary of this run's model traffic.
func printUsage(w io.Writer, r *metrics.InternalRecorder) {
	stats := r.GetAllModelStats()
	if len(stats) == 0 {
		return
	}

	models := make([]string, 0, len(stats))
	for name := range stats {
		models = append(models, name)
	}
	sort.Strings(models)

	fmt.Fprintln(w, "Model usage:")
	for _, name := range models {
		s := stats[name]
		fmt.Fprintf(w, "  %s: requests=%d errors=%d retries=%d tokens=%d+%d=%d time=%s\n",
			name, s.RequestCount, s.ErrorCount, s.RetryCount,
			s.PromptTokens, s.CompletionTokens, s.TotalTokens, s.TotalDuration.Round(time.Millisecond))
	}
}

// printRemoteUsage prints the totals a Prometheus server has scraped from llmdialog.
func printRemoteUsage(ctx context.Context, prometheusURL string, w io.Writer) error {
	q, err := exchangemetrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}

	usage, err := q.UsageByModel(ctx)
	if err != nil {
		return err
	}
	results, err := q.ExchangeResults(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Token usage by model:")
	for _, u := range usage {
		fmt.Fprintf(w, "  %s: requests=%d tokens=%d+%d=%d\n",
			u.Model, u.Requests, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	}

	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	fmt.Fprintln(w, "Exchanges by result:")
	for _, label := range labels {
		fmt.Fprintf(w, "  %s: %d\n", label, results[label])
	}
	return nil
}
