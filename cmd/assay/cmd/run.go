package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpadapter "github.com/assay-dev/assay/internal/adapter/inbound/http"
	"github.com/assay-dev/assay/internal/adapter/outbound/memory"
	"github.com/assay-dev/assay/internal/adapter/outbound/sqlstore"
	"github.com/assay-dev/assay/internal/adapter/outbound/state"
	"github.com/assay-dev/assay/internal/adapter/outbound/telemetry"
	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/argvalidator"
	"github.com/assay-dev/assay/internal/domain/baseline"
	"github.com/assay-dev/assay/internal/domain/cache"
	"github.com/assay-dev/assay/internal/domain/judge"
	"github.com/assay-dev/assay/internal/domain/metric"
	"github.com/assay-dev/assay/internal/domain/runner"
	"github.com/assay-dev/assay/internal/domain/strictguard"
	"github.com/assay-dev/assay/internal/domain/trace"
)

var (
	runTracePath    string
	runBaselinePath string
	runCacheDB      string
	runIncremental  bool
	runRefreshCache bool
	runSaveBaseline bool
	runStrictExit   bool
	runMetricsAddr  string
	runTraceSpans   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a suite against a recorded trace and report pass/fail per test",
	Long: `run replays a suite's tests against a recorded trace file and evaluates
each one against its Expected assertions, printing a JSON SuiteResult and
exiting 1 if any test Fails or Errors (or, with --strict-exit, Warns/Flakes/
is Unstable).

No live provider is wired into this build: --trace <path> is required.`,
	RunE: runRun,
}

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Alias for run with CI-friendly defaults (incremental skip, strict exit)",
	RunE: func(c *cobra.Command, args []string) error {
		runIncremental = true
		runStrictExit = true
		return runRun(c, args)
	},
}

func registerRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&runTracePath, "trace", "", "path to a recorded trace file (JSONL); required, no live provider is configured")
	c.Flags().StringVar(&runBaselinePath, "baseline", "", "path to a baseline.json file for regression checks")
	c.Flags().StringVar(&runCacheDB, "cache-db", ".assay/cache.db", "path to the SQLite cache/quarantine database")
	c.Flags().BoolVar(&runIncremental, "incremental", false, "skip tests whose fingerprint last passed")
	c.Flags().BoolVar(&runRefreshCache, "refresh-cache", false, "force a cache miss on every test this run")
	c.Flags().BoolVar(&runSaveBaseline, "save-baseline", false, "record this run's scores into --baseline after completion")
	c.Flags().BoolVar(&runStrictExit, "strict-exit", false, "treat Warn/Flaky/Unstable rows as a failing exit code")
	c.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "if set, serve /health and /metrics on this address for the run's duration")
	c.Flags().BoolVar(&runTraceSpans, "trace-spans", false, "export assay.run/assay.test.attempt/assay.judge.call OTel spans to stdout")
}

func init() {
	registerRunFlags(runCmd)
	registerRunFlags(ciCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ciCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	tp, err := telemetry.NewProvider(telemetry.Config{Enabled: runTraceSpans, Exporter: "stdout"})
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if runTracePath == "" {
		return fmt.Errorf("no live provider is configured for this build: pass --trace <path> to replay a recorded trace")
	}
	source, err := trace.Load(runTracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}
	var provider runner.Provider = runner.NewTraceProvider(source)

	var store *sqlstore.Store
	var cacheGate *cache.Gate
	if cfg.CacheEnabled() {
		if dir := filepath.Dir(runCacheDB); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create cache directory: %w", err)
			}
		}
		store, err = sqlstore.Open(runCacheDB, logger)
		if err != nil {
			return fmt.Errorf("open cache store: %w", err)
		}
		defer store.Close()
		cacheGate = cache.NewGate(store, store)
	}

	validator, err := argvalidator.NewValidator(256)
	if err != nil {
		return fmt.Errorf("build arg validator: %w", err)
	}

	rateLimiter := memory.NewRateLimiter()
	defer rateLimiter.Stop()

	var judgeCache judge.Cache
	if store != nil {
		judgeCache = sqlstore.NewJudgeCache(store)
	}
	// No live judge completion client exists in this build (the LLM-as-judge
	// HTTP client is an external collaborator, out of scope per spec.md §1);
	// a rubric that can't resolve from the trace or cache surfaces as a
	// config diagnostic rather than silently passing.
	var judgeClient judge.Completer
	if cfg.Settings.ReplayStrict {
		judgeClient = strictguard.NewJudgeNetworkGuard()
	}
	judgeSvc := judge.NewService(judge.Config{
		Enabled:       cfg.Settings.Judge.Samples > 0,
		Provider:      cfg.Model,
		Model:         cfg.Settings.Judge.Model,
		Samples:       cfg.Settings.Judge.Samples,
		RubricVersion: cfg.Settings.Judge.RubricVersion,
	}, judgeCache, judgeClient, rateLimiter)

	registry := metric.NewRegistry(validator, judgeSvc)

	if runMetricsAddr != "" {
		srv := startMetricsServer(runMetricsAddr, store, rateLimiter, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	var quarantine runner.QuarantineLookup
	if store != nil {
		quarantine = store
	}

	var baselineChecker runner.BaselineChecker
	var baselineStore *state.FileBaselineStore
	var candidate *baseline.Baseline
	if runBaselinePath != "" {
		baselineStore = state.NewFileBaselineStore(runBaselinePath, logger)
		loaded, err := baselineStore.Load(cfg.Suite)
		if err != nil {
			return fmt.Errorf("load baseline: %w", err)
		}
		domainBaseline := loaded.ToDomain()
		baselineChecker = domainBaseline
		candidate = domainBaseline
	}

	tests, err := toTestCases(cfg.Tests)
	if err != nil {
		return fmt.Errorf("build test cases: %w", err)
	}

	r := runner.NewRunner(logger, provider, cacheGate, registry, quarantine, baselineChecker)
	result, err := r.RunSuite(cmd.Context(), runner.SuiteInput{
		Suite:        cfg.Suite,
		Model:        cfg.Model,
		Settings:     cfg.Settings,
		Tests:        tests,
		Incremental:  runIncremental,
		RefreshCache: runRefreshCache,
	})
	if err != nil {
		return fmt.Errorf("run suite: %w", err)
	}

	if runSaveBaseline {
		if err := persistBaseline(cfg.Suite, runBaselinePath, baselineStore, candidate, result, logger); err != nil {
			return fmt.Errorf("save baseline: %w", err)
		}
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	counts := result.StatusCounts()
	logger.Info("suite finished", "suite", cfg.Suite, "run_id", result.RunID,
		"pass", counts[runner.StatusPass], "fail", counts[runner.StatusFail],
		"error", counts[runner.StatusError], "flaky", counts[runner.StatusFlaky],
		"warn", counts[runner.StatusWarn], "unstable", counts[runner.StatusUnstable],
		"skipped", counts[runner.StatusSkipped])

	code := result.ExitCode(runStrictExit)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// persistBaseline captures result's per-test scores into a baseline file,
// creating one at path (default .assay/baseline.json) if none was loaded
// via --baseline. One entry is written per test whose Expected carries a
// numeric score (details["score"] on its last attempt); assertion-only
// tests with no scalar score contribute nothing to the baseline.
func persistBaseline(suite, path string, store *state.FileBaselineStore, existing *baseline.Baseline, result *runner.SuiteResult, logger *slog.Logger) error {
	if path == "" {
		path = ".assay/baseline.json"
	}
	if store == nil {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create baseline directory: %w", err)
			}
		}
		store = state.NewFileBaselineStore(path, logger)
	}

	fp, err := configFingerprint()
	if err != nil {
		logger.Warn("compute config fingerprint", "error", err)
	}

	b := &baseline.Baseline{
		SchemaVersion:     1,
		Suite:             suite,
		ToolVersion:       "assay",
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
		ConfigFingerprint: fp,
	}
	if existing != nil {
		b.Entries = append(b.Entries, existing.Entries...)
	}
	for _, row := range result.Rows {
		if row.Score == nil {
			continue
		}
		replaceOrAppendEntry(b, baseline.Entry{TestID: row.TestID, Metric: "score", Score: *row.Score})
	}
	b.Sort()

	return store.Save(state.FromDomain(b))
}

func replaceOrAppendEntry(b *baseline.Baseline, entry baseline.Entry) {
	for i, e := range b.Entries {
		if e.TestID == entry.TestID && e.Metric == entry.Metric {
			b.Entries[i] = entry
			return
		}
	}
	b.Entries = append(b.Entries, entry)
}

// startMetricsServer launches the optional /health and /metrics HTTP
// surface for the run's duration, on its own goroutine. store may be nil
// (no cache configured, health check reports "not configured" for it);
// the caller is responsible for shutting the returned server down.
func startMetricsServer(addr string, store *sqlstore.Store, rateLimiter *memory.MemoryRateLimiter, logger *slog.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	metrics := httpadapter.NewMetrics(reg)

	var pinger httpadapter.StorePinger
	if store != nil {
		pinger = store
	}
	health := httpadapter.NewHealthChecker(pinger, rateLimiter, filepath.Dir(runCacheDB), "assay")

	mux := http.NewServeMux()
	mux.Handle("/health", health.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: httpadapter.MetricsMiddleware(metrics)(mux)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", addr)
	return srv
}
