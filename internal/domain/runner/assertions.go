package runner

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/sequence"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// EvaluateAssertions checks a TestCase's TraceAssertion list against the
// response's recorded tool calls. Each assertion decodes as one
// policy.SequenceRule (require/before/after/never_after/eventually/
// max_calls/sequence/blocklist — the same tagged union C3 already walks),
// so the response's Meta["tool_calls"] stream is fed through the Sequence
// Rule Engine rather than a second, parallel assertion language. No stored
// episode graph or external store is consulted.
// A non-empty return is appended to the result row under
// details.assertions and downgrades the test's status to Fail.
func EvaluateAssertions(assertions []map[string]any, resp trace.Response) ([]string, error) {
	if len(assertions) == 0 {
		return nil, nil
	}

	encoded, err := json.Marshal(assertions)
	if err != nil {
		return nil, fmt.Errorf("encode trace assertions: %w", err)
	}
	var rules []policy.SequenceRule
	if err := json.Unmarshal(encoded, &rules); err != nil {
		return nil, fmt.Errorf("config error: invalid trace assertion: %w", err)
	}
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = fmt.Sprintf("assertion#%d", i)
		}
	}

	calls, err := toolCallsFromMeta(resp.Meta)
	if err != nil {
		return nil, err
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Index < calls[j].Index })

	walkCalls := make([]sequence.Call, len(calls))
	for i, c := range calls {
		walkCalls[i] = sequence.Call{Tool: c.ToolName, Args: c.Args}
	}

	resolver, err := policy.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("build resolver for trace assertions: %w", err)
	}
	engine, err := sequence.NewEngine(&policy.Policy{Sequences: rules}, resolver, nil)
	if err != nil {
		return nil, fmt.Errorf("build sequence engine for trace assertions: %w", err)
	}
	result, err := engine.Walk(walkCalls)
	if err != nil {
		return nil, fmt.Errorf("walk trace assertions: %w", err)
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, fmt.Sprintf("%s: %s", v.RuleID, v.Explanation))
	}
	return messages, nil
}

// toolCallsFromMeta mirrors internal/domain/metric's private helper of the
// same name: decode resp.Meta["tool_calls"] into typed records, tolerating
// an absent entry as "no calls made".
func toolCallsFromMeta(meta map[string]any) ([]trace.ToolCallRecord, error) {
	raw, ok := meta["tool_calls"]
	if !ok || raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode tool_calls meta: %w", err)
	}
	var calls []trace.ToolCallRecord
	if err := json.Unmarshal(encoded, &calls); err != nil {
		return nil, fmt.Errorf("decode tool_calls meta: %w", err)
	}
	return calls, nil
}
