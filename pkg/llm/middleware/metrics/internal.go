package metrics

import (
	"sync"
	"time"
)

// InternalRecorder aggregates usage per model in memory. The CLI prints it as an
// end-of-run summary without needing a Prometheus server.
type InternalRecorder struct {
	models map[string]*ModelStats
	mu     sync.RWMutex
}

// ModelStats represents aggregated usage for one model.
//
//nolint:govet
type ModelStats struct {
	Model            string        `json:"model"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalTokens      int64         `json:"total_tokens"`
	RequestCount     int64         `json:"request_count"`
	ErrorCount       int64         `json:"error_count"`
	RetryCount       int64         `json:"retry_count"`
	TotalDuration    time.Duration `json:"total_duration"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		models: make(map[string]*ModelStats),
	}
}

func (r *InternalRecorder) statsLocked(model string) *ModelStats {
	stats, ok := r.models[model]
	if !ok {
		stats = &ModelStats{Model: model}
		r.models[model] = stats
	}
	return stats
}

// ObserveRequest records metrics for a completed model request.
func (r *InternalRecorder) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.statsLocked(model)
	stats.RequestCount++
	stats.TotalDuration += duration
	stats.LastUpdated = time.Now()
	if !success {
		stats.ErrorCount++
		return
	}
	stats.PromptTokens += int64(promptTokens)
	stats.CompletionTokens += int64(completionTokens)
	stats.TotalTokens = stats.PromptTokens + stats.CompletionTokens
}

// IncRetry counts a transport-level retry.
func (r *InternalRecorder) IncRetry(model, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsLocked(model).RetryCount++
}

// GetModelStats returns a copy of the aggregated stats for model, or nil.
func (r *InternalRecorder) GetModelStats(model string) *ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stats, ok := r.models[model]; ok {
		cp := *stats
		return &cp
	}
	return nil
}

// GetAllModelStats returns copies of the stats for every model seen.
func (r *InternalRecorder) GetAllModelStats() map[string]*ModelStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ModelStats, len(r.models))
	for model, stats := range r.models {
		cp := *stats
		result[model] = &cp
	}
	return result
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*ModelStats)
}
