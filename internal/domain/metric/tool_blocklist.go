package metric

import (
	"context"
	"fmt"

	"github.com/assay-dev/assay/internal/domain/trace"
)

// ToolBlocklistEvaluator fails if any tool call in the response's meta
// invoked a name on the blocked list.
type ToolBlocklistEvaluator struct{}

func (ToolBlocklistEvaluator) Variant() string { return "tool_blocklist" }

func (ToolBlocklistEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	blocked := stringSlice(expected["blocked"])
	if len(blocked) == 0 {
		return pass(1.0), nil
	}
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockedSet[b] = struct{}{}
	}

	calls, err := toolCallsFromMeta(resp.Meta)
	if err != nil {
		return Result{}, err
	}

	var hits []string
	for _, call := range calls {
		if _, ok := blockedSet[call.ToolName]; ok {
			hits = append(hits, call.ToolName)
		}
	}
	if len(hits) == 0 {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("called %d blocked tool(s)", len(hits)), map[string]any{"blocked_calls": hits}), nil
}
