// Package baseline implements the Baseline & Coverage Analyzer (C10): a
// diff between a candidate run's scores and a stored reference baseline,
// and a tool/rule coverage report computed from a policy and a set of
// observed traces.
package baseline

// Entry is one scored (test, metric) pair recorded into a Baseline.
type Entry struct {
	TestID string         `json:"test_id"`
	Metric string         `json:"metric"`
	Score  float64        `json:"score"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Baseline is the persisted reference a candidate run is diffed against.
type Baseline struct {
	SchemaVersion     int     `json:"schema_version"`
	Suite             string  `json:"suite"`
	ToolVersion       string  `json:"tool_version"`
	CreatedAt         string  `json:"created_at"`
	ConfigFingerprint string  `json:"config_fingerprint"`
	Entries           []Entry `json:"entries"`
}

// Key uniquely identifies one baseline entry.
type Key struct {
	TestID string
	Metric string
}

// Lookup returns the score recorded under (testID, metric), if any.
// Satisfies runner.BaselineChecker so a loaded Baseline can gate the
// runner's per-test regression check directly.
func (b *Baseline) Lookup(testID, metric string) (float64, bool) {
	for _, e := range b.Entries {
		if e.TestID == testID && e.Metric == metric {
			return e.Score, true
		}
	}
	return 0, false
}

// Sort orders Entries deterministically by (test_id, metric), matching
// spec.md §3's requirement that a written baseline file sort its entries
// this way.
func (b *Baseline) Sort() {
	sortEntries(b.Entries)
}

// DiffEntry is one (test, metric) pair's comparison between a candidate
// and reference baseline.
type DiffEntry struct {
	TestID         string  `json:"test_id"`
	Metric         string  `json:"metric"`
	CandidateScore float64 `json:"candidate_score"`
	BaselineScore  float64 `json:"baseline_score"`
	Delta          float64 `json:"delta"`
}

// DiffResult is the complete output of comparing a candidate Baseline
// against a reference one.
type DiffResult struct {
	Regressions  []DiffEntry `json:"regressions"`
	Improvements []DiffEntry `json:"improvements"`
	NewTests     []Key       `json:"new_tests"`
	MissingTests []Key       `json:"missing_tests"`
}

// TraceRecord is one observed trace's tool/rule footprint, the unit
// ComputeCoverage aggregates over.
type TraceRecord struct {
	TraceID        string   `json:"trace_id"`
	ToolsCalled    []string `json:"tools_called"`
	RulesTriggered []string `json:"rules_triggered"`
}

// CoverageReport is ComputeCoverage's output.
type CoverageReport struct {
	ToolCoverage     float64  `json:"tool_coverage"`
	RuleCoverage     float64  `json:"rule_coverage"`
	Overall          float64  `json:"overall"`
	MeetsThreshold   bool     `json:"meets_threshold"`
	HighRiskGaps     []string `json:"high_risk_gaps,omitempty"`
	UnexpectedTools  []string `json:"unexpected_tools,omitempty"`
	ObservedTools    []string `json:"observed_tools,omitempty"`
	TriggeredRules   []string `json:"triggered_rules,omitempty"`
}
