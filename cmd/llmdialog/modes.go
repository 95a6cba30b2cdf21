package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"llmdialog/pkg/batch"
	"llmdialog/pkg/config"
	"llmdialog/pkg/dialog"
	"llmdialog/pkg/driver"
)

// runPrompt runs a one-round exchange and prints the conversation.
func runPrompt(ctx context.Context, model dialog.Model, cfg dialog.Config, obs dialog.Observer, prompt string, w io.Writer) error {
	orch, err := dialog.New(driver.NewScript("prompt", prompt), model, cfg, dialog.WithObserver(obs))
	if err != nil {
		return err
	}
	conv, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, conv.String())
	return nil
}

// runScript runs every conversation in a script file concurrently and prints them in file order.
func runScript(ctx context.Context, model dialog.Model, cfg *config.Config, obs dialog.Observer, path string, w io.Writer) error {
	scripts, err := driver.LoadScripts(path)
	if err != nil {
		return err
	}

	jobs := make([]batch.Job, 0, len(scripts))
	for _, s := range scripts {
		jobs = append(jobs, batch.Job{Name: s.Name, Driver: s})
	}

	runner := batch.NewRunner(model, cfg.DialogConfig(), cfg.Orchestration.Concurrency, dialog.WithObserver(obs))
	results := runner.Run(ctx, jobs)

	for _, res := range results {
		fmt.Fprintf(w, "=== %s (%s) ===\n", res.Name, res.Duration.Round(time.Millisecond))
		if res.Err != nil {
			fmt.Fprintf(w, "error: %v\n\n", res.Err)
			continue
		}
		fmt.Fprintf(w, "%s\n\n", res.Conversation.String())
	}

	if failed := batch.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d conversations failed", failed, len(results))
	}
	return nil
}

// runInteractive runs an exchange driven by d until the user quits.
func runInteractive(ctx context.Context, model dialog.Model, cfg dialog.Config, obs dialog.Observer, d *driver.Interactive, w io.Writer) error {
	orch, err := dialog.New(d, model, cfg, dialog.WithObserver(obs))
	if err != nil {
		return err
	}
	conv, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Conversation ended after %d messages.\n", conv.Len())
	return nil
}
