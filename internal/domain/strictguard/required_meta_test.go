package strictguard

import (
	"errors"
	"testing"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/trace"
)

func TestRequireMeta_SemanticSimilarity_MissingEmbeddings(t *testing.T) {
	expected := map[string]any{"semantic_similarity_to": "reference text"}
	resp := trace.Response{Meta: map[string]any{}}

	err := RequireMeta(expected, resp)

	var d *diagnostic.Diagnostic
	if !errors.As(err, &d) || d.Code != diagnostic.EReplayStrictMissing {
		t.Fatalf("RequireMeta() error = %v, want E_REPLAY_STRICT_MISSING", err)
	}
}

func TestRequireMeta_SemanticSimilarity_PresentEmbeddings_NoError(t *testing.T) {
	expected := map[string]any{"semantic_similarity_to": "reference text"}
	resp := trace.Response{Meta: map[string]any{
		"assay": map[string]any{
			"embeddings": map[string]any{
				"response":  []float64{0.1, 0.2},
				"reference": []float64{0.1, 0.2},
			},
		},
	}}

	if err := RequireMeta(expected, resp); err != nil {
		t.Fatalf("RequireMeta() error = %v, want nil", err)
	}
}

func TestRequireMeta_Faithfulness_MissingRubric(t *testing.T) {
	expected := map[string]any{"faithfulness": map[string]any{"min_score": 0.8}}
	resp := trace.Response{Meta: map[string]any{
		"assay": map[string]any{
			"judge": map[string]any{"relevance": map[string]any{"score": 0.9}},
		},
	}}

	err := RequireMeta(expected, resp)

	var d *diagnostic.Diagnostic
	if !errors.As(err, &d) || d.Code != diagnostic.EReplayStrictMissing {
		t.Fatalf("RequireMeta() error = %v, want E_REPLAY_STRICT_MISSING for missing faithfulness rubric", err)
	}
}

func TestRequireMeta_JudgeCriteria_RequiresAnyJudgeEntry(t *testing.T) {
	expected := map[string]any{"judge_criteria": []string{"tone", "clarity"}}

	missingResp := trace.Response{Meta: map[string]any{}}
	if err := RequireMeta(expected, missingResp); err == nil {
		t.Fatalf("RequireMeta() error = nil, want E_REPLAY_STRICT_MISSING when no judge entries present")
	}

	presentResp := trace.Response{Meta: map[string]any{
		"assay": map[string]any{
			"judge": map[string]any{"tone": map[string]any{"score": 0.7}},
		},
	}}
	if err := RequireMeta(expected, presentResp); err != nil {
		t.Fatalf("RequireMeta() error = %v, want nil", err)
	}
}

func TestRequireMeta_NoRelevantKeys_NoError(t *testing.T) {
	expected := map[string]any{"contains": "some substring"}
	resp := trace.Response{Meta: map[string]any{}}

	if err := RequireMeta(expected, resp); err != nil {
		t.Fatalf("RequireMeta() error = %v, want nil for a variant with no precomputed-meta dependency", err)
	}
}
