package metric

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/assay-dev/assay/internal/domain/trace"
)

// toolCallsFromMeta decodes resp.Meta["tool_calls"] (however it was
// unmarshalled — []trace.ToolCallRecord from a live adapter or generic
// []any from a JSON-decoded trace) into typed records. A response with no
// tool_calls entry made no calls at all, which is vacuously valid for every
// tool-call metric.
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

// sortToolCallsByIndex orders calls by their recorded Index, since a
// provider's meta isn't guaranteed to list tool calls in invocation order.
func sortToolCallsByIndex(calls []trace.ToolCallRecord) {
	sort.Slice(calls, func(i, j int) bool { return calls[i].Index < calls[j].Index })
}
