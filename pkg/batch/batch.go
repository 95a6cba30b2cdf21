// Package batch runs independent exchanges concurrently against one shared model.
//
// Each job gets its own Orchestrator, so retry state and conversations never cross
// between jobs. Only the model client is shared and must be safe for concurrent use.
package batch

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/iter"

	"llmdialog/pkg/dialog"
	"llmdialog/pkg/logx"
)

// Job is one named exchange.
type Job struct {
	Name   string
	Driver dialog.Driver
}

// Result is the outcome of one Job. Results are returned in job order.
type Result struct {
	Name         string
	Conversation *dialog.Conversation // nil on failure
	Err          error
	Duration     time.Duration
}

// Runner executes jobs with bounded parallelism.
type Runner struct {
	model       dialog.Model
	cfg         dialog.Config
	concurrency int
	opts        []dialog.Option
	logger      *logx.Logger
}

// NewRunner creates a runner. concurrency < 1 runs jobs one at a time.
// opts are applied to every orchestrator the runner creates.
func NewRunner(model dialog.Model, cfg dialog.Config, concurrency int, opts ...dialog.Option) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		model:       model,
		cfg:         cfg,
		concurrency: concurrency,
		opts:        opts,
		logger:      logx.NewLogger("batch"),
	}
}

// Run executes every job and waits for all of them. A failed job does not stop the others;
// canceling ctx fails the jobs still running.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	mapper := iter.Mapper[Job, Result]{MaxGoroutines: r.concurrency}

	r.logger.Info("running %d exchanges (concurrency %d)", len(jobs), r.concurrency)
	return mapper.Map(jobs, func(job *Job) Result {
		return r.runOne(ctx, *job)
	})
}

func (r *Runner) runOne(ctx context.Context, job Job) Result {
	start := time.Now()

	// Job-scoped logger first so callers' options can still replace it.
	opts := append([]dialog.Option{dialog.WithLogger(r.logger.With("job", job.Name))}, r.opts...)
	orch, err := dialog.New(job.Driver, r.model, r.cfg, opts...)
	if err != nil {
		return Result{Name: job.Name, Err: err}
	}

	conv, err := orch.Run(ctx)
	return Result{Name: job.Name, Conversation: conv, Err: err, Duration: time.Since(start)}
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for i := range results {
		if results[i].Err != nil {
			n++
		}
	}
	return n
}
