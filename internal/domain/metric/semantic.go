package metric

import (
	"context"
	"fmt"
	"math"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// semanticEpsilon guards against floating-point rounding noise right at the
// threshold: a score within epsilon of min_score is treated as passing.
const semanticEpsilon = 1e-6

// SemanticSimilarityEvaluator computes cosine similarity between the
// response and reference embeddings injected into meta under
// assay.embeddings.{response,reference} (by a precompute step or a live
// embedder adapter), per spec.md §4.8.
type SemanticSimilarityEvaluator struct{}

func (SemanticSimilarityEvaluator) Variant() string { return "semantic_similarity_to" }

func (SemanticSimilarityEvaluator) Evaluate(_ context.Context, _ Input, expected map[string]any, resp trace.Response) (Result, error) {
	minScore := floatField(expected["min_score"])

	a, err := embeddingFromMeta(resp.Meta, "response")
	if err != nil {
		return Result{}, fmt.Errorf("config error: missing response embedding for semantic similarity: %w", err)
	}
	b, err := embeddingFromMeta(resp.Meta, "reference")
	if err != nil {
		return Result{}, fmt.Errorf("config error: missing reference embedding for semantic similarity: %w", err)
	}

	score, err := cosineSimilarity(a, b)
	if err != nil {
		return Result{}, err
	}

	passed := score+semanticEpsilon >= minScore
	return Result{
		Passed: passed,
		Score:  score,
		Details: map[string]any{
			"min_score": minScore,
			"epsilon":   semanticEpsilon,
			"dims":      len(a),
		},
	}, nil
}

func embeddingFromMeta(meta map[string]any, which string) ([]float64, error) {
	assayVal, _ := meta["assay"].(map[string]any)
	embeddings, _ := assayVal["embeddings"].(map[string]any)
	if embeddings == nil {
		return nil, fmt.Errorf("no assay.embeddings.%s in meta", which)
	}
	raw, ok := embeddings[which]
	if !ok {
		return nil, fmt.Errorf("no assay.embeddings.%s in meta", which)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("assay.embeddings.%s is not a numeric array", which)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("assay.embeddings.%s contains a non-numeric value at index %d", which, i)
		}
		out[i] = f
	}
	return out, nil
}

// cosineSimilarity is hand-rolled rather than pulled from a vector-math
// library: no such dependency appears anywhere in the example pack, and the
// computation itself is a five-line stdlib-math reduction not worth a new
// dependency for.
func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, diagnostic.New(diagnostic.EEmbDims, "metric.semantic_similarity_to",
			fmt.Sprintf("embedding dimension mismatch: response has %d, reference has %d", len(a), len(b))).
			WithContext(map[string]any{"response_dims": len(a), "reference_dims": len(b)})
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cosine similarity undefined for a zero-magnitude embedding")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
