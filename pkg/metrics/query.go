package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ModelUsage represents aggregated token usage for one model.
type ModelUsage struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// UsageByModel retrieves token and request totals per model, sorted by model name.
func (q *QueryService) UsageByModel(ctx context.Context) ([]ModelUsage, error) {
	byModel := map[string]*ModelUsage{}
	get := func(name string) *ModelUsage {
		u, ok := byModel[name]
		if !ok {
			u = &ModelUsage{Model: name}
			byModel[name] = u
		}
		return u
	}

	prompt, err := q.sumByModel(ctx, `sum by (model) (llm_tokens_total{type="prompt"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	for name, v := range prompt {
		get(name).PromptTokens = int64(v)
	}

	completion, err := q.sumByModel(ctx, `sum by (model) (llm_tokens_total{type="completion"})`)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	for name, v := range completion {
		get(name).CompletionTokens = int64(v)
	}

	requests, err := q.sumByModel(ctx, `sum by (model) (llm_requests_total)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	for name, v := range requests {
		get(name).Requests = int64(v)
	}

	usage := make([]ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		usage = append(usage, *u)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Model < usage[j].Model })
	return usage, nil
}

// ExchangeResults retrieves finished exchange counts keyed by result label.
func (q *QueryService) ExchangeResults(ctx context.Context) (map[string]int64, error) {
	result, _, err := q.queryAPI.Query(ctx, `sum by (result) (dialog_exchanges_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}

	counts := map[string]int64{}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			counts[string(sample.Metric["result"])] = int64(sample.Value)
		}
	}
	return counts, nil
}

func (q *QueryService) sumByModel(ctx context.Context, query string) (map[string]float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err //nolint:wrapcheck // callers add context
	}

	sums := map[string]float64{}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["model"]; ok {
				sums[string(name)] += float64(sample.Value)
			}
		}
	}
	return sums, nil
}
