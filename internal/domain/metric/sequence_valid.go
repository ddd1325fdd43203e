package metric

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/sequence"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// SequenceValidEvaluator delegates inline rules to the Sequence Rule Engine
// (C3), and/or performs a legacy element-wise exact sequence comparison.
// Either or both may be present inline; a Condition guard on an inline rule
// is not supported at this layer (no CEL evaluator is threaded through a
// per-test Expected map) — only policy-level sequence rules get CEL guards.
type SequenceValidEvaluator struct{}

func (SequenceValidEvaluator) Variant() string { return "sequence_valid" }

func (SequenceValidEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	rules, err := sequenceRules(expected["rules"])
	if err != nil {
		return Result{}, fmt.Errorf("config error: invalid sequence_valid rules: %w", err)
	}
	legacySequence := stringSlice(expected["sequence"])

	if len(rules) == 0 && len(legacySequence) == 0 {
		return pass(1.0), nil
	}

	calls, err := toolCallsFromMeta(resp.Meta)
	if err != nil {
		return Result{}, err
	}
	sortToolCallsByIndex(calls)

	names := make([]string, len(calls))
	seqCalls := make([]sequence.Call, len(calls))
	for i, c := range calls {
		names[i] = c.ToolName
		seqCalls[i] = sequence.Call{Tool: c.ToolName, Args: c.Args}
	}

	if len(rules) > 0 {
		resolver, err := policy.NewResolver(nil)
		if err != nil {
			return Result{}, fmt.Errorf("build resolver for sequence_valid: %w", err)
		}
		engine, err := sequence.NewEngine(&policy.Policy{Sequences: rules}, resolver, nil)
		if err != nil {
			return Result{}, fmt.Errorf("build sequence engine for sequence_valid: %w", err)
		}
		walked, err := engine.Walk(seqCalls)
		if err != nil {
			return Result{}, fmt.Errorf("walk sequence_valid rules: %w", err)
		}
		if len(walked.Violations) > 0 {
			first := walked.Violations[0]
			return fail(0.0, fmt.Sprintf("sequence_valid rule %q failed: %s", first.RuleID, first.Explanation),
				map[string]any{"violations": walked.Violations}), nil
		}
	}

	if len(legacySequence) > 0 && !equalStrings(names, legacySequence) {
		return fail(0.0, sequenceMismatchMessage(names, legacySequence), map[string]any{
			"expected": legacySequence,
			"actual":   names,
		}), nil
	}

	return pass(1.0), nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sequenceMismatchMessage reports the first differing index, or whether
// the actual sequence is a strict prefix/superset of the expected one.
func sequenceMismatchMessage(actual, expected []string) string {
	limit := len(actual)
	if len(expected) < limit {
		limit = len(expected)
	}
	for i := 0; i < limit; i++ {
		if actual[i] != expected[i] {
			return fmt.Sprintf("sequence_valid mismatch at index %d: expected %q, found %q", i, expected[i], actual[i])
		}
	}
	if len(actual) > len(expected) {
		return fmt.Sprintf("sequence_valid mismatch: unexpected extra tool at index %d: %q", len(expected), actual[len(expected)])
	}
	return fmt.Sprintf("sequence_valid mismatch: missing expected tool at index %d: %q", len(actual), expected[len(actual)])
}

func sequenceRules(v any) ([]policy.SequenceRule, error) {
	if v == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rules []policy.SequenceRule
	if err := json.Unmarshal(encoded, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}
