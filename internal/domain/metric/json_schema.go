package metric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/assay-dev/assay/internal/domain/trace"
)

// JsonSchemaEvaluator validates resp.Text, parsed as JSON, against an
// inline JSON-Schema document, using the same compiler C2's Validator
// compiles per-tool schemas with.
type JsonSchemaEvaluator struct{}

func (JsonSchemaEvaluator) Variant() string { return "json_schema" }

func (JsonSchemaEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	raw, err := json.Marshal(expected["json_schema"])
	if err != nil {
		return Result{}, fmt.Errorf("config error: encode inline json_schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mem://json_schema", bytes.NewReader(raw)); err != nil {
		return Result{}, fmt.Errorf("config error: add json_schema resource: %w", err)
	}
	schema, err := compiler.Compile("mem://json_schema")
	if err != nil {
		return Result{}, fmt.Errorf("config error: compile json_schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal([]byte(resp.Text), &instance); err != nil {
		return fail(0.0, fmt.Sprintf("response is not valid JSON: %s", err), nil), nil
	}

	if err := schema.Validate(instance); err != nil {
		return fail(0.0, "response does not satisfy json_schema", map[string]any{"error": err.Error()}), nil
	}
	return pass(1.0), nil
}
