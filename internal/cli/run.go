package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amrshaker/taskmill/internal/config"
	"github.com/amrshaker/taskmill/internal/domain"
	"github.com/amrshaker/taskmill/internal/executor"
	"github.com/amrshaker/taskmill/internal/logging"
	"github.com/amrshaker/taskmill/internal/pool"
	"github.com/amrshaker/taskmill/internal/progress"
	"github.com/amrshaker/taskmill/internal/workload"
	"github.com/amrshaker/taskmill/pkg/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo batch workload through the work-stealing pool",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Int("workers", runtime.NumCPU(), "number of pool workers")
	runCmd.Flags().Int("jobs", 20, "number of generated demo jobs")
	runCmd.Flags().String("metrics-addr", ":8080", "Prometheus metrics server address")
	runCmd.Flags().String("log-file", "", "log file path (default: job_log_<timestamp>.txt)")
	runCmd.Flags().Int("log-interval", 3, "emit a progress line every N completed jobs")
	runCmd.Flags().Int("highlight-ms", 250, "warn on jobs slower than this many ms (0 disables)")
	runCmd.Flags().Duration("retry-base-delay", 0, "base backoff between retry attempts")
	runCmd.Flags().String("summary-file", "job_summary.json", "path of the end-of-run summary JSON")
	runCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("workers", runCmd.Flags(), "workers")
	bindFlag("jobs", runCmd.Flags(), "jobs")
	bindFlag("metrics_addr", runCmd.Flags(), "metrics-addr")
	bindFlag("log_file", runCmd.Flags(), "log-file")
	bindFlag("log_interval", runCmd.Flags(), "log-interval")
	bindFlag("highlight_ms", runCmd.Flags(), "highlight-ms")
	bindFlag("retry_base_delay", runCmd.Flags(), "retry-base-delay")
	bindFlag("summary_file", runCmd.Flags(), "summary-file")
	bindFlag("otel_endpoint", runCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runRun(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = fmt.Sprintf("job_log_%s.txt", time.Now().Format("20060102_150405"))
	}
	lg, err := logging.New(logPath, logging.WithLevel(parseLevel(cfg.LogLevel)))
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = lg.Close() }()
	logger := lg.Slog()

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "taskmill", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	// Build the whole batch up front so the tracker knows its total.
	jobs := buildBatch(cfg.Jobs)
	jobs = append(jobs, workload.SystemJobs()...)

	tracker := progress.New(len(jobs),
		progress.WithLines(lg),
		progress.WithLogger(logger),
		progress.WithLogInterval(cfg.LogInterval),
		progress.WithHighlight(cfg.HighlightMs),
	)
	metrics := telemetry.NewPoolMetrics(tracker.Registry())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.StartServer(runCtx, cfg.MetricsAddr, logger)

	exec := executor.New(
		executor.WithLogger(logger),
		executor.WithRetryDelay(cfg.RetryBaseDelay),
	)
	p, err := pool.New(cfg.Workers,
		pool.WithLogger(logger),
		pool.WithExecutor(exec),
		pool.WithMetrics(metrics),
		pool.WithContext(runCtx),
		pool.WithResultFunc(func(r domain.Result) {
			tracker.MarkDoneCategory(r.Category, r.DurationMs, resultLevel(r))
		}),
	)
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, draining queued jobs...")
		cancel()
	}()

	logger.Info("run starting",
		slog.Int("workers", cfg.Workers),
		slog.Int("jobs", len(jobs)),
		slog.String("metrics_addr", cfg.MetricsAddr),
	)

	for _, job := range jobs {
		if err := p.Dispatch(job); err != nil {
			return fmt.Errorf("dispatch %s: %w", job.ID, err)
		}
	}

	p.Wait()
	p.Stop()
	tracker.Finish()

	summary, err := tracker.ExportSummaryJSON()
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if err := os.WriteFile(cfg.SummaryFile, summary, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	lg.Line("summary exported to " + cfg.SummaryFile)
	return nil
}

// buildBatch draws n jobs round-robin from the default generators.
func buildBatch(n int) []*domain.Job {
	reg := workload.DefaultRegistry()
	kinds := reg.Kinds()
	jobs := make([]*domain.Job, 0, n)
	for i := 0; i < n; i++ {
		gen, err := reg.Get(kinds[i%len(kinds)])
		if err != nil {
			continue
		}
		id := fmt.Sprintf("%s-%s", gen.Kind(), uuid.New().String()[:8])
		jobs = append(jobs, gen.New(id))
	}
	return jobs
}

func resultLevel(r domain.Result) slog.Level {
	switch r.Status {
	case domain.StatusSuccess:
		return slog.LevelInfo
	case domain.StatusTimeout:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
