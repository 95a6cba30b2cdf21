// Command llmdialog runs conversations between a driver and a chat model.
//
//	llmdialog -prompt "What is Rust?"
//	llmdialog -script conversations.yaml -concurrency 4
//	llmdialog -interactive
//	llmdialog -save-secrets
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"llmdialog/pkg/config"
	"llmdialog/pkg/dialog"
	"llmdialog/pkg/driver"
	"llmdialog/pkg/llm/factory"
	"llmdialog/pkg/llm/middleware/metrics"
	exchangemetrics "llmdialog/pkg/metrics"
	"llmdialog/pkg/version"
)

type options struct {
	configPath   string
	projectDir   string
	prompt       string
	script       string
	interactive  bool
	concurrency  int
	metricsAddr  string
	metricsDump  bool
	metricsQuery string
	saveSecrets  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Config file (default: ./llmdialog.yaml if present)")
	flag.StringVar(&opts.projectDir, "projectdir", ".", "Directory holding .llmdialog/secrets.json.enc")
	flag.StringVar(&opts.prompt, "prompt", "", "Send a single prompt and print the conversation")
	flag.StringVar(&opts.script, "script", "", "Run the conversations in a YAML script")
	flag.BoolVar(&opts.interactive, "interactive", false, "Read prompts from stdin until EOF or /quit")
	flag.IntVar(&opts.concurrency, "concurrency", 0, "Parallel conversations for -script (overrides config)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address (overrides config)")
	flag.BoolVar(&opts.metricsDump, "metrics-dump", false, "Print all metrics in text format when done")
	flag.StringVar(&opts.metricsQuery, "metrics-query", "", "Print token usage recorded by the Prometheus server at this URL and exit")
	flag.BoolVar(&opts.saveSecrets, "save-secrets", false, "Store the API key in an encrypted secrets file and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Print(version.String("llmdialog"))
		os.Exit(0)
	}

	os.Exit(run(opts))
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(opts options) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.metricsQuery != "" {
		if err := printRemoteUsage(ctx, opts.metricsQuery, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Metrics query failed: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cfg.ApplyLogging()
	if opts.concurrency > 0 {
		cfg.Orchestration.Concurrency = opts.concurrency
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}

	if opts.saveSecrets {
		if err := saveSecrets(opts.projectDir, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save secrets: %v\n", err)
			return 1
		}
		return 0
	}

	secrets, err := loadSecrets(opts.projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	usage := metrics.NewInternalRecorder()
	observer := exchangemetrics.NewExchangeObserver(reg)
	f := factory.New(cfg,
		factory.WithRecorder(metrics.Tee(metrics.NewPrometheusRecorder(reg), usage)),
		factory.WithSecrets(secrets),
	)

	if cfg.Metrics.Enabled {
		stop := serveMetrics(cfg.Metrics.Addr, reg, f.Breaker())
		defer stop()
	}

	model, err := f.CreateModel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create model client: %v\n", err)
		return 1
	}

	err = dispatch(ctx, opts, &cfg, model, observer, os.Stdout)
	printUsage(os.Stderr, usage)
	if opts.metricsDump {
		if dumpErr := exchangemetrics.Dump(os.Stdout, reg); dumpErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to dump metrics: %v\n", dumpErr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "llmdialog: %v\n", err)
		return 1
	}
	return 0
}

var errNoMode = errors.New("one of -prompt, -script or -interactive is required")

// dispatch runs the selected mode.
func dispatch(ctx context.Context, opts options, cfg *config.Config, model dialog.Model, obs dialog.Observer, w io.Writer) error {
	switch {
	case opts.prompt != "":
		return runPrompt(ctx, model, cfg.DialogConfig(), obs, opts.prompt, w)
	case opts.script != "":
		return runScript(ctx, model, cfg, obs, opts.script, w)
	case opts.interactive:
		return runInteractive(ctx, model, cfg.DialogConfig(), obs, driver.NewTerminal(os.Stdin, w), w)
	default:
		return errNoMode
	}
}
