package metric

import (
	"context"

	"github.com/assay-dev/assay/internal/domain/judge"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// judgeEpsilon mirrors semanticEpsilon: a judge agreement score within
// epsilon of min_score is treated as passing.
const judgeEpsilon = 1e-6

// JudgeEvaluator is the narrow slice of judge.Service these metrics need:
// resolve a rubric's pass/score per spec.md §4.7's trace→cache→live order.
// *judge.Service satisfies this directly.
type JudgeEvaluator interface {
	Evaluate(ctx context.Context, testID, rubricID string, input judge.Input, responseText string, meta map[string]any) (judge.Result, error)
}

// FaithfulnessEvaluator applies a min_score threshold to the judge's
// agreement score for the "faithfulness" rubric.
type FaithfulnessEvaluator struct {
	Judge JudgeEvaluator
}

func (FaithfulnessEvaluator) Variant() string { return "faithfulness" }

func (e FaithfulnessEvaluator) Evaluate(ctx context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	return evaluateRubric(ctx, e.Judge, "faithfulness", input, expected, resp)
}

// RelevanceEvaluator applies a min_score threshold to the judge's agreement
// score for the "relevance" rubric.
type RelevanceEvaluator struct {
	Judge JudgeEvaluator
}

func (RelevanceEvaluator) Variant() string { return "relevance" }

func (e RelevanceEvaluator) Evaluate(ctx context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	return evaluateRubric(ctx, e.Judge, "relevance", input, expected, resp)
}

func evaluateRubric(ctx context.Context, je JudgeEvaluator, rubricID string, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	minScore := floatField(expected["min_score"])
	result, err := je.Evaluate(ctx, input.TestID, rubricID,
		judge.Input{Prompt: input.Prompt, Context: contextString(input.Context)}, resp.Text, resp.Meta)
	if err != nil {
		return Result{}, err
	}
	passed := result.Passed && result.Score+judgeEpsilon >= minScore
	return Result{
		Passed: passed,
		Score:  result.Score,
		Details: map[string]any{
			"min_score":      minScore,
			"epsilon":        judgeEpsilon,
			"rationale":      result.Rationale,
			"source":         result.Source,
			"rubric_version": result.RubricVersion,
		},
	}, nil
}

// JudgeCriteriaEvaluator runs a free-form criteria string through the
// judge, keyed by that criteria text rather than a fixed rubric id — no
// score threshold, the judge's own pass/fail vote decides the metric.
type JudgeCriteriaEvaluator struct {
	Judge JudgeEvaluator
}

func (JudgeCriteriaEvaluator) Variant() string { return "judge_criteria" }

func (e JudgeCriteriaEvaluator) Evaluate(ctx context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	criteria := stringField(expected["judge_criteria"])
	result, err := e.Judge.Evaluate(ctx, input.TestID, "criteria:"+criteria,
		judge.Input{Prompt: criteria, Context: input.Prompt}, resp.Text, resp.Meta)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Passed: result.Passed,
		Score:  result.Score,
		Details: map[string]any{
			"rationale": result.Rationale,
			"source":    result.Source,
			"criteria":  criteria,
		},
	}, nil
}
