package metric

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/assay-dev/assay/internal/domain/argvalidator"
	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// ArgsValidEvaluator validates every tool call in the response's meta
// against an inline per-tool JSON-Schema map, delegating the compile/
// validate step itself to argvalidator.Validator (C2) rather than
// reimplementing schema compilation.
type ArgsValidEvaluator struct {
	Validator *argvalidator.Validator
}

func (ArgsValidEvaluator) Variant() string { return "args_valid" }

func (e ArgsValidEvaluator) Evaluate(_ context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	schemas, err := schemaMap(expected["schema"])
	if err != nil {
		return Result{}, fmt.Errorf("config error: invalid inline args_valid schema: %w", err)
	}
	if len(schemas) == 0 {
		return pass(1.0), nil
	}

	calls, err := toolCallsFromMeta(resp.Meta)
	if err != nil {
		return Result{}, err
	}

	pol := &policy.Policy{Tools: policy.Tools{RequireArgs: schemas}}

	var violations []map[string]any
	for _, call := range calls {
		verdict := e.Validator.Validate(input.TestID+"#args_valid", pol, call.ToolName, call.Args)
		if verdict.Allowed {
			continue
		}
		switch verdict.ReasonCode {
		case diagnostic.EArgSchema:
			for _, v := range verdict.Details {
				violations = append(violations, map[string]any{"path": v.Path, "constraint": v.Constraint, "message": v.Message})
			}
		case diagnostic.EPolicyMissingTool:
			// Legacy behavior: a tool call with no declared schema is
			// vacuously valid for this metric; the MCP policy surface is
			// where an undeclared tool is actually an error (C2).
		default:
			violations = append(violations, map[string]any{
				"message": fmt.Sprintf("policy error for %s: %s", call.ToolName, verdict.ReasonCode),
			})
		}
	}

	if len(violations) == 0 {
		return pass(1.0), nil
	}
	return fail(0.0, fmt.Sprintf("args_valid failed: %d error(s)", len(violations)), map[string]any{"violations": violations}), nil
}

func schemaMap(v any) (map[string]json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}
