package metric

import (
	"context"

	"github.com/assay-dev/assay/internal/domain/argvalidator"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// Evaluator evaluates one Expected variant, recognized by its discriminator
// key (Variant()).
type Evaluator interface {
	Variant() string
	Evaluate(ctx context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error)
}

// Registry dispatches an Expected map to the Evaluator matching its sole
// discriminator key.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry builds the default C8 registry: every variant named in
// spec.md §3's Expected tagged union, wired to its delegate (C2 validator,
// C3 sequence engine, C7 judge service).
func NewRegistry(validator *argvalidator.Validator, judgeSvc JudgeEvaluator) *Registry {
	return newRegistry(
		MustContainEvaluator{},
		MustNotContainEvaluator{},
		RegexMatchEvaluator{},
		RegexNotMatchEvaluator{},
		JsonSchemaEvaluator{},
		ToolBlocklistEvaluator{},
		SemanticSimilarityEvaluator{},
		ArgsValidEvaluator{Validator: validator},
		SequenceValidEvaluator{},
		FaithfulnessEvaluator{Judge: judgeSvc},
		RelevanceEvaluator{Judge: judgeSvc},
		JudgeCriteriaEvaluator{Judge: judgeSvc},
	)
}

func newRegistry(evaluators ...Evaluator) *Registry {
	m := make(map[string]Evaluator, len(evaluators))
	for _, e := range evaluators {
		m[e.Variant()] = e
	}
	return &Registry{evaluators: m}
}

// Evaluate dispatches expected to the Evaluator matching its sole
// discriminator key. An expected map whose key isn't recognized by any
// registered Evaluator is a neutral pass, per spec.md §4.8, so metrics
// compose freely across a TestCase's assertion list.
func (r *Registry) Evaluate(ctx context.Context, input Input, expected map[string]any, resp trace.Response) (Result, error) {
	for key := range expected {
		if ev, ok := r.evaluators[key]; ok {
			return ev.Evaluate(ctx, input, expected, resp)
		}
	}
	return pass(1.0), nil
}
