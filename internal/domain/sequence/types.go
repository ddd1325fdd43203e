// Package sequence implements the Sequence Rule Engine (C3): a stateful walk
// over a stream of tool-call names that evaluates each policy SequenceRule
// incrementally, one step at a time, and collects end-of-trace violations
// for rules whose post-conditions were never satisfied.
package sequence

import "github.com/assay-dev/assay/internal/domain/policy"

// Verdict is the per-step outcome of the static allow/deny/sequence check.
type Verdict string

const (
	VerdictAllowed Verdict = "Allowed"
	VerdictBlocked Verdict = "Blocked"
	VerdictWarning Verdict = "Warning"
)

// RuleEvaluation records one rule's outcome for one step of the walk.
type RuleEvaluation struct {
	RuleID      string         `json:"rule_id"`
	RuleType    policy.RuleType `json:"rule_type"`
	Passed      bool           `json:"passed"`
	Explanation string         `json:"explanation"`
	Context     map[string]any `json:"context,omitempty"`
}

// Step is one evaluated position in the tool-call stream.
type Step struct {
	Index       int              `json:"index"`
	Tool        string           `json:"tool"`
	Args        map[string]any   `json:"args,omitempty"`
	Verdict     Verdict          `json:"verdict"`
	Evaluations []RuleEvaluation `json:"evaluations,omitempty"`
	CallCounts  map[string]int   `json:"call_counts"`
}

// Call is one entry of the tool-call stream fed to Walk: a tool name with
// optional arguments, in the order the calls occurred.
type Call struct {
	Tool string
	Args map[string]any
}

// Result is the complete output of walking a policy's sequence rules over a
// stream of Calls.
type Result struct {
	Steps          []Step   `json:"steps"`
	Violations     []RuleEvaluation `json:"violations"`
	FirstBlockIndex *int    `json:"first_block_index,omitempty"`
	BlockingRules  []string `json:"blocking_rules"`
}
