// Package explain implements the Trace Explainer (C4): it wraps a Sequence
// Rule Engine walk and produces a structured explanation plus pure-function
// renderers (terminal, markdown, HTML, JSON) over that explanation.
package explain

import "github.com/assay-dev/assay/internal/domain/sequence"

// ExplainedStep is one rendered step of a TraceExplanation.
type ExplainedStep struct {
	Index       int                        `json:"index"`
	Tool        string                     `json:"tool"`
	Args        map[string]any             `json:"args,omitempty"`
	Verdict     sequence.Verdict           `json:"verdict"`
	Evaluations []sequence.RuleEvaluation  `json:"evaluations,omitempty"`
	CallCounts  map[string]int             `json:"call_counts"`
}

// TraceExplanation is the full C4 output: a step-by-step rendering of a
// Sequence Rule Engine's walk over one trace.
type TraceExplanation struct {
	PolicyName      string          `json:"policy_name"`
	PolicyVersion   string          `json:"policy_version"`
	TotalSteps      int             `json:"total_steps"`
	AllowedSteps    int             `json:"allowed_steps"`
	BlockedSteps    int             `json:"blocked_steps"`
	FirstBlockIndex *int            `json:"first_block_index,omitempty"`
	Steps           []ExplainedStep `json:"steps"`
	BlockingRules   []string        `json:"blocking_rules"`
}

// Explain builds a TraceExplanation from a completed sequence.Result.
func Explain(policyName, policyVersion string, result *sequence.Result) *TraceExplanation {
	exp := &TraceExplanation{
		PolicyName:      policyName,
		PolicyVersion:   policyVersion,
		TotalSteps:      len(result.Steps),
		FirstBlockIndex: result.FirstBlockIndex,
		BlockingRules:   result.BlockingRules,
		Steps:           make([]ExplainedStep, len(result.Steps)),
	}

	for i, s := range result.Steps {
		exp.Steps[i] = ExplainedStep{
			Index:       s.Index,
			Tool:        s.Tool,
			Args:        s.Args,
			Verdict:     s.Verdict,
			Evaluations: s.Evaluations,
			CallCounts:  s.CallCounts,
		}
		switch s.Verdict {
		case sequence.VerdictAllowed:
			exp.AllowedSteps++
		case sequence.VerdictBlocked:
			exp.BlockedSteps++
		}
	}

	return exp
}
