// Package runner implements the Attempt Classifier & Test Runner (C9): it
// executes a suite's tests in parallel, retries a failing test up to a
// bounded number of attempts, classifies the resulting attempt list into a
// final TestStatus, and overlays quarantine and baseline-regression
// decisions before the row is finalized.
package runner

// TestStatus is a test's (or one attempt's) outcome classification.
type TestStatus string

const (
	StatusPass      TestStatus = "Pass"
	StatusFail      TestStatus = "Fail"
	StatusFlaky     TestStatus = "Flaky"
	StatusWarn      TestStatus = "Warn"
	StatusError     TestStatus = "Error"
	StatusSkipped   TestStatus = "Skipped"
	StatusUnstable  TestStatus = "Unstable"
)

// AttemptRow is one ordered attempt at running a test; attempt_no=1 is the
// first.
type AttemptRow struct {
	AttemptNo  int            `json:"attempt_no"`
	Status     TestStatus     `json:"status"`
	Message    string         `json:"message"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// TestResultRow is one test's finalized outcome. Created for every test in
// a suite; never mutated once the runner returns it.
type TestResultRow struct {
	TestID      string         `json:"test_id"`
	Status      TestStatus     `json:"status"`
	Score       *float64       `json:"score,omitempty"`
	Cached      bool           `json:"cached"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	DurationMS  *int64         `json:"duration_ms,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	SkipReason  string         `json:"skip_reason,omitempty"`
	Attempts    []AttemptRow   `json:"attempts,omitempty"`
}

// TestCase is the domain-level representation of one suite entry the
// runner executes: a prompt with its optional structured context, the
// single Expected variant map evaluated by the metric registry, and the
// trace-assertion list checked against the response's recorded tool calls.
type TestCase struct {
	ID               string
	Prompt           string
	Context          map[string]any
	Expected         map[string]any
	Assertions       []map[string]any
	Tags             []string
	Metadata         map[string]any
	PolicyContentSHA string
}

// SuiteResult is RunSuite's complete output: every row, sorted by TestID so
// two runs over identical inputs produce byte-identical JSON artifacts
// regardless of goroutine scheduling order.
type SuiteResult struct {
	// RunID correlates this run across the JSON report and any OTel spans
	// emitted while it executed. It is not written to the sqlite store, whose
	// internal integer run id only needs to be unique within one cache
	// database.
	RunID string          `json:"run_id"`
	Suite string          `json:"suite"`
	Model string          `json:"model"`
	Rows  []TestResultRow `json:"rows"`
}

// StatusCounts tallies each TestStatus across Rows. Every test contributes
// exactly one count, so the sum always equals len(Rows).
func (r *SuiteResult) StatusCounts() map[TestStatus]int {
	counts := map[TestStatus]int{}
	for _, row := range r.Rows {
		counts[row.Status]++
	}
	return counts
}

// ExitCode computes the suite-level process exit code: 1 (TEST_FAILED) if
// any row is Fail or Error, or — when strict is set — Warn, Flaky, or
// Unstable; 0 otherwise. Structural/configuration errors raised before
// execution use exit code 2 and never reach this method.
func (r *SuiteResult) ExitCode(strict bool) int {
	for _, row := range r.Rows {
		switch row.Status {
		case StatusFail, StatusError:
			return 1
		case StatusWarn, StatusFlaky, StatusUnstable:
			if strict {
				return 1
			}
		}
	}
	return 0
}
