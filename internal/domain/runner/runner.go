package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/cache"
	"github.com/assay-dev/assay/internal/domain/fingerprint"
	"github.com/assay-dev/assay/internal/domain/metric"
	"github.com/assay-dev/assay/internal/domain/strictguard"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// tracer is the global OTel tracer handle for C9. It resolves to a no-op
// implementation until something (internal/adapter/outbound/telemetry)
// calls otel.SetTracerProvider, so RunSuite needs no constructor wiring to
// support both a plain CLI run and one with tracing enabled.
var tracer = otel.Tracer("github.com/assay-dev/assay/internal/domain/runner")

// SuiteInput is everything RunSuite needs for one suite execution.
type SuiteInput struct {
	Suite       string
	Model       string
	Settings    config.Settings
	Tests       []TestCase
	Incremental bool
	RefreshCache bool
	MetricVersions []string
}

// Runner executes a suite's tests per spec.md §4.9: bounded parallelism,
// per-test retries, attempt classification, and the quarantine/baseline
// overlays applied after classification.
type Runner struct {
	logger     *slog.Logger
	provider   Provider
	cacheGate  *cache.Gate
	metrics    *metric.Registry
	quarantine QuarantineLookup
	baseline   BaselineChecker
}

// NewRunner builds a Runner. cacheGate, quarantine, and baseline may all be
// nil to disable their respective features (e.g. a one-off `assay explain`
// invocation with no persistent store configured).
func NewRunner(logger *slog.Logger, provider Provider, cacheGate *cache.Gate, metrics *metric.Registry, quarantine QuarantineLookup, baseline BaselineChecker) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:     logger,
		provider:   provider,
		cacheGate:  cacheGate,
		metrics:    metrics,
		quarantine: quarantine,
		baseline:   baseline,
	}
}

// RunSuite executes every test in in.Tests, bounded to in.Settings.Parallel
// concurrent workers, and returns one TestResultRow per test sorted by
// TestID for deterministic downstream output.
func (r *Runner) RunSuite(ctx context.Context, in SuiteInput) (*SuiteResult, error) {
	runUUID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "assay.run", oteltrace.WithAttributes(
		attribute.String("assay.run_id", runUUID),
		attribute.String("assay.suite", in.Suite),
		attribute.Int("assay.test_count", len(in.Tests)),
	))
	defer span.End()

	parallel := in.Settings.Parallel
	if parallel <= 0 {
		parallel = 4
	}

	var runID int64
	if r.cacheGate != nil {
		var err error
		runID, err = r.cacheGate.CreateRun(in.Suite)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create run")
			return nil, fmt.Errorf("create run: %w", err)
		}
	}

	rows := make([]TestResultRow, len(in.Tests))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, tc := range in.Tests {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tc TestCase) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				// A cancelled or panicked worker produces a task-error
				// result row rather than aborting the whole suite.
				if rec := recover(); rec != nil {
					r.logger.Error("test worker panicked", "test_id", tc.ID, "panic", rec)
					rows[i] = TestResultRow{TestID: tc.ID, Status: StatusError, Message: fmt.Sprintf("panic: %v", rec)}
				}
			}()
			rows[i] = r.runTest(ctx, in, runID, tc)
		}(i, tc)
	}
	wg.Wait()

	sort.Slice(rows, func(i, j int) bool { return rows[i].TestID < rows[j].TestID })

	if r.cacheGate != nil {
		finalStatus := "pass"
		for _, row := range rows {
			if row.Status == StatusFail || row.Status == StatusError {
				finalStatus = "fail"
				break
			}
		}
		span.SetAttributes(attribute.String("assay.final_status", finalStatus))
		if err := r.cacheGate.FinalizeRun(runID, finalStatus); err != nil {
			r.logger.Warn("finalize run failed", "run_id", runID, "error", err)
		}
	}

	return &SuiteResult{RunID: runUUID, Suite: in.Suite, Model: in.Model, Rows: rows}, nil
}

// runTest runs one test's fingerprint/incremental-skip/attempt-loop/
// classify/overlay pipeline, recording the final outcome when a cache is
// configured.
func (r *Runner) runTest(ctx context.Context, in SuiteInput, runID int64, tc TestCase) TestResultRow {
	fp := computeFingerprint(in, tc)

	if r.cacheGate != nil {
		if rec, hit, err := r.cacheGate.CheckIncremental(fp, in.Incremental, in.RefreshCache); err != nil {
			r.logger.Warn("incremental cache lookup failed", "test_id", tc.ID, "error", err)
		} else if hit {
			score := rec.PreviousScore
			return TestResultRow{
				TestID:      tc.ID,
				Status:      StatusSkipped,
				Score:       &score,
				Cached:      true,
				Message:     "skipped: matched a previously passing run",
				Fingerprint: fp,
				SkipReason:  "incremental_cache_hit",
				Details: map[string]any{
					"previous_run_id": rec.PreviousRunID,
					"previous_at":     rec.PreviousAt,
				},
			}
		}
	}

	maxAttempts := in.Settings.Retries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var attempts []AttemptRow
	var lastResp trace.Response
	var lastScore float64
	for attemptNo := 1; attemptNo <= maxAttempts; attemptNo++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "assay.test.attempt", oteltrace.WithAttributes(
			attribute.String("assay.test_id", tc.ID),
			attribute.String("assay.fingerprint", fp),
			attribute.Int("assay.attempt_no", attemptNo),
		))
		row, resp, score := r.runAttempt(attemptCtx, in.Settings, tc, attemptNo)
		attemptSpan.SetAttributes(attribute.String("assay.status", string(row.Status)))
		if row.Status == StatusError || row.Status == StatusFail {
			attemptSpan.SetStatus(codes.Error, row.Message)
		}
		attemptSpan.End()

		attempts = append(attempts, row)
		lastResp = resp
		lastScore = score
		if row.Status == StatusPass {
			break
		}
	}

	status := Classify(attempts)

	quarantined := r.quarantine != nil && r.quarantine.IsQuarantined(tc.ID)
	status = applyQuarantine(quarantined, in.Settings.Quarantine, status)

	details := map[string]any{}
	if len(attempts) > 0 {
		for k, v := range attempts[len(attempts)-1].Details {
			details[k] = v
		}
	}

	if status != StatusSkipped && len(tc.Assertions) > 0 {
		msgs, err := EvaluateAssertions(tc.Assertions, lastResp)
		if err != nil {
			r.logger.Warn("trace assertion evaluation failed", "test_id", tc.ID, "error", err)
		} else if len(msgs) > 0 {
			status = StatusFail
			details["assertions"] = msgs
		}
	}

	var baselineNote string
	if status != StatusSkipped {
		status, baselineNote = checkBaselineRegression(r.baseline, tc.ID, tc.Expected, lastScore, status)
		if baselineNote != "" {
			details["baseline"] = baselineNote
		}
	}

	message := attempts[len(attempts)-1].Message
	if baselineNote != "" {
		message = baselineNote
	}

	var durPtr *int64
	var total int64
	for _, a := range attempts {
		if a.DurationMS != nil {
			total += *a.DurationMS
		}
	}
	durPtr = &total

	if r.cacheGate != nil {
		if err := r.cacheGate.RecordResult(runID, tc.ID, fp, strings.ToLower(string(status)), lastScore, ""); err != nil {
			r.logger.Warn("record result failed", "test_id", tc.ID, "error", err)
		}
	}

	return TestResultRow{
		TestID:      tc.ID,
		Status:      status,
		Score:       &lastScore,
		Message:     message,
		Details:     details,
		DurationMS:  durPtr,
		Fingerprint: fp,
		Attempts:    attempts,
	}
}

// runAttempt executes one attempt: a provider call bounded by the suite's
// per-attempt timeout, the replay-strict required-meta check, and metric
// evaluation. It never returns an error directly — failures are folded
// into the returned AttemptRow's status/message, since C8 metrics and
// attempt-level errors both feed the same classifier.
func (r *Runner) runAttempt(ctx context.Context, settings config.Settings, tc TestCase, attemptNo int) (AttemptRow, trace.Response, float64) {
	timeoutSec := settings.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	actx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := r.provider.Complete(actx, tc.Prompt, tc.Context)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg := err.Error()
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("attempt timed out after %ds: %s", timeoutSec, msg)
		}
		return AttemptRow{AttemptNo: attemptNo, Status: StatusError, Message: msg, DurationMS: &elapsed}, trace.Response{}, 0
	}

	if settings.ReplayStrict {
		if err := strictguard.RequireMeta(tc.Expected, resp); err != nil {
			return AttemptRow{AttemptNo: attemptNo, Status: StatusError, Message: err.Error(), DurationMS: &elapsed}, resp, 0
		}
	}

	result, err := r.metrics.Evaluate(actx, metric.Input{TestID: tc.ID, Prompt: tc.Prompt, Context: tc.Context}, tc.Expected, resp)
	if err != nil {
		return AttemptRow{AttemptNo: attemptNo, Status: StatusError, Message: err.Error(), DurationMS: &elapsed}, resp, 0
	}

	status := StatusFail
	if result.Passed {
		status = StatusPass
	}
	details := result.Details
	if details == nil {
		details = map[string]any{}
	}
	details["score"] = result.Score

	message := "passed"
	if !result.Passed {
		if msg, ok := details["message"].(string); ok {
			message = msg
		} else {
			message = "metric did not pass"
		}
	}

	return AttemptRow{AttemptNo: attemptNo, Status: status, Message: message, DurationMS: &elapsed, Details: details}, resp, result.Score
}

// computeFingerprint builds the composite fingerprint over a test's
// canonical inputs. Context and Expected are rendered through
// encoding/json, whose map keys are always emitted in sorted order, so the
// same inputs always produce the same canonical string.
func computeFingerprint(in SuiteInput, tc TestCase) string {
	ctxJSON, _ := json.Marshal(tc.Context)
	expectedJSON, _ := json.Marshal(tc.Expected)
	return fingerprint.Compute(fingerprint.Input{
		Suite:             in.Suite,
		Model:             in.Model,
		TestID:            tc.ID,
		Prompt:            tc.Prompt,
		Context:           string(ctxJSON),
		ExpectedCanonical: string(expectedJSON),
		PolicyContentSHA:  tc.PolicyContentSHA,
		MetricVersions:    in.MetricVersions,
	})
}
