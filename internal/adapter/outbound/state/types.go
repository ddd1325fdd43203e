// Package state provides file-based persistence for assay's baseline file.
//
// The baseline.json file stores a suite's last-known-good scores per
// (test_id, metric) pair, used by the coverage/baseline analyzer (C10) to
// detect regressions and improvements across runs. This package provides
// atomic writes, file locking, and backup functionality, the same pattern
// the teacher uses for its own runtime state file.
package state

import "time"

// Baseline is the top-level structure persisted in baseline.json.
type Baseline struct {
	// SchemaVersion is the baseline file format version. Currently 1.
	SchemaVersion int `json:"schema_version"`

	// Suite is the name of the suite this baseline was captured from.
	Suite string `json:"suite"`

	// ToolVersion is the assay version that produced this baseline.
	ToolVersion string `json:"tool_version"`

	// CreatedAt is when this baseline was captured, RFC3339.
	CreatedAt time.Time `json:"created_at"`

	// ConfigFingerprint is the SHA-256 of the resolved EvalConfig file
	// content at capture time. `run` stamps it onto the baseline it writes;
	// no command compares it against a later configuration.
	ConfigFingerprint string `json:"config_fingerprint"`

	// Entries are the per-(test_id, metric) scores. Sorted deterministically
	// by (TestID, Metric) on every Save.
	Entries []BaselineEntry `json:"entries"`
}

// BaselineEntry is a single (test_id, metric) score recorded in a baseline.
type BaselineEntry struct {
	// TestID is the TestCase.ID this entry belongs to.
	TestID string `json:"test_id"`

	// Metric names the scored dimension (e.g. "semantic_similarity",
	// "faithfulness", "pass_rate").
	Metric string `json:"metric"`

	// Score is the recorded value for this metric.
	Score float64 `json:"score"`

	// Meta carries optional free-form context (e.g. sample count, rubric
	// version) that isn't itself compared during diffing.
	Meta map[string]any `json:"meta,omitempty"`
}
