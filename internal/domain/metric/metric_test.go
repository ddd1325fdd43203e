package metric

import (
	"context"
	"testing"

	"github.com/assay-dev/assay/internal/domain/argvalidator"
	"github.com/assay-dev/assay/internal/domain/judge"
	"github.com/assay-dev/assay/internal/domain/trace"
)

func TestMustContain_PassesAndFails(t *testing.T) {
	ev := MustContainEvaluator{}
	resp := trace.Response{Text: "the quick brown fox"}

	result, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"must_contain": []any{"quick", "fox"}}, resp)
	if err != nil || !result.Passed {
		t.Fatalf("Evaluate() = %+v, err=%v, want passed", result, err)
	}

	result, err = ev.Evaluate(context.Background(), Input{}, map[string]any{"must_contain": []any{"quick", "elephant"}}, resp)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Passed {
		t.Error("expected failure when a required substring is missing")
	}
}

func TestRegexMatch_InvalidPatternErrors(t *testing.T) {
	ev := RegexMatchEvaluator{}
	_, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"regex_match": "("}, trace.Response{Text: "x"})
	if err == nil {
		t.Fatal("expected a config error for an invalid regex pattern")
	}
}

func TestJsonSchema_ValidatesResponseBody(t *testing.T) {
	ev := JsonSchemaEvaluator{}
	expected := map[string]any{
		"json_schema": map[string]any{
			"type":                 "object",
			"required":             []any{"ok"},
			"additionalProperties": true,
			"properties":           map[string]any{"ok": map[string]any{"type": "boolean"}},
		},
	}

	pass, err := ev.Evaluate(context.Background(), Input{}, expected, trace.Response{Text: `{"ok": true}`})
	if err != nil || !pass.Passed {
		t.Fatalf("Evaluate() = %+v, err=%v, want passed", pass, err)
	}

	fail, err := ev.Evaluate(context.Background(), Input{}, expected, trace.Response{Text: `{"ok": "nope"}`})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if fail.Passed {
		t.Error("expected failure when response violates the schema")
	}
}

func TestSemanticSimilarity_BoundaryAndEpsilonGuard(t *testing.T) {
	ev := SemanticSimilarityEvaluator{}
	meta := map[string]any{
		"assay": map[string]any{
			"embeddings": map[string]any{
				"response":  []any{1.0, 0.0},
				"reference": []any{1.0, 0.0},
			},
		},
	}
	resp := trace.Response{Meta: meta}

	result, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"min_score": 1.0}, resp)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed {
		t.Error("expected identical vectors (score 1.0) to pass threshold 1.0")
	}

	// Threshold above 1.0 by more than epsilon must fail even with a
	// perfect-similarity pair.
	failResult, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"min_score": 1.0 + 2*semanticEpsilon}, resp)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if failResult.Passed {
		t.Error("expected threshold exceeding score+epsilon to fail")
	}
}

func TestSemanticSimilarity_MissingEmbeddingErrors(t *testing.T) {
	ev := SemanticSimilarityEvaluator{}
	_, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"min_score": 0.5}, trace.Response{Meta: map[string]any{}})
	if err == nil {
		t.Fatal("expected an error when embeddings are absent from meta")
	}
}

func TestToolBlocklist_DetectsBlockedCall(t *testing.T) {
	ev := ToolBlocklistEvaluator{}
	meta := map[string]any{"tool_calls": []any{
		map[string]any{"tool_name": "rm_rf", "index": 0},
	}}
	result, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"blocked": []any{"rm_rf"}}, trace.Response{Meta: meta})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Passed {
		t.Error("expected failure when a blocked tool was called")
	}
}

func TestArgsValid_SchemaViolationFails(t *testing.T) {
	v, err := argvalidator.NewValidator(8)
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}
	ev := ArgsValidEvaluator{Validator: v}

	expected := map[string]any{
		"schema": map[string]any{
			"search": map[string]any{
				"type":     "object",
				"required": []any{"query"},
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}
	meta := map[string]any{"tool_calls": []any{
		map[string]any{"tool_name": "search", "index": 0, "args": map[string]any{}},
	}}

	result, err := ev.Evaluate(context.Background(), Input{TestID: "t1"}, expected, trace.Response{Meta: meta})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Passed {
		t.Error("expected failure when a required arg is missing")
	}
}

func TestArgsValid_UndeclaredToolIsVacuouslyValid(t *testing.T) {
	v, err := argvalidator.NewValidator(8)
	if err != nil {
		t.Fatalf("NewValidator() error: %v", err)
	}
	ev := ArgsValidEvaluator{Validator: v}

	expected := map[string]any{"schema": map[string]any{"search": map[string]any{"type": "object"}}}
	meta := map[string]any{"tool_calls": []any{
		map[string]any{"tool_name": "undeclared", "index": 0, "args": map[string]any{}},
	}}

	result, err := ev.Evaluate(context.Background(), Input{TestID: "t1"}, expected, trace.Response{Meta: meta})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed {
		t.Error("expected a call to an undeclared tool to be vacuously valid (legacy behavior)")
	}
}

func TestSequenceValid_LegacyExactMatch(t *testing.T) {
	ev := SequenceValidEvaluator{}
	meta := map[string]any{"tool_calls": []any{
		map[string]any{"tool_name": "b", "index": 1},
		map[string]any{"tool_name": "a", "index": 0},
	}}

	result, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"sequence": []any{"a", "b"}}, trace.Response{Meta: meta})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected pass once calls are sorted by index, got %+v", result)
	}
}

func TestSequenceValid_InlineRequireRule(t *testing.T) {
	ev := SequenceValidEvaluator{}
	meta := map[string]any{"tool_calls": []any{
		map[string]any{"tool_name": "a", "index": 0},
	}}
	expected := map[string]any{
		"rules": []any{map[string]any{"type": "require", "tool": "b"}},
	}

	result, err := ev.Evaluate(context.Background(), Input{}, expected, trace.Response{Meta: meta})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Passed {
		t.Error("expected failure when a required tool never appears")
	}
}

type fakeJudge struct {
	result judge.Result
	err    error
}

func (f *fakeJudge) Evaluate(_ context.Context, _, _ string, _ judge.Input, _ string, _ map[string]any) (judge.Result, error) {
	return f.result, f.err
}

func TestFaithfulness_ThresholdsJudgeScore(t *testing.T) {
	ev := FaithfulnessEvaluator{Judge: &fakeJudge{result: judge.Result{Passed: true, Score: 0.9}}}
	result, err := ev.Evaluate(context.Background(), Input{}, map[string]any{"min_score": 0.8}, trace.Response{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed {
		t.Error("expected pass when judge score clears min_score")
	}

	ev = FaithfulnessEvaluator{Judge: &fakeJudge{result: judge.Result{Passed: true, Score: 0.5}}}
	result, err = ev.Evaluate(context.Background(), Input{}, map[string]any{"min_score": 0.8}, trace.Response{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result.Passed {
		t.Error("expected failure when judge score misses min_score")
	}
}

func TestRegistry_UnknownVariantIsNeutralPass(t *testing.T) {
	reg := NewRegistry(nil, nil)
	result, err := reg.Evaluate(context.Background(), Input{}, map[string]any{"some_future_variant": "x"}, trace.Response{})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed || result.Score != 1.0 {
		t.Errorf("Result = %+v, want neutral pass score=1.0", result)
	}
}

func TestRegistry_DispatchesByDiscriminatorKey(t *testing.T) {
	reg := NewRegistry(nil, nil)
	result, err := reg.Evaluate(context.Background(), Input{}, map[string]any{"must_contain": []any{"hi"}}, trace.Response{Text: "hi there"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result.Passed {
		t.Error("expected must_contain to dispatch and pass")
	}
}
