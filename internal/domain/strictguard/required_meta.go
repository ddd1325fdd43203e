package strictguard

import (
	"fmt"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// RequireMeta checks, before a metric ever evaluates resp, that the meta
// paths its Expected variant depends on are already present. In
// replay-strict mode a missing path can never be filled by a live call, so
// this must fail loudly (E_REPLAY_STRICT_MISSING) rather than let the
// metric evaluator report a generic "missing embedding" config error.
func RequireMeta(expected map[string]any, resp trace.Response) error {
	for key := range expected {
		switch key {
		case "semantic_similarity_to":
			if err := requireEmbeddings(resp.Meta); err != nil {
				return err
			}
		case "faithfulness":
			if err := requireJudge(resp.Meta, "faithfulness"); err != nil {
				return err
			}
		case "relevance":
			if err := requireJudge(resp.Meta, "relevance"); err != nil {
				return err
			}
		case "judge_criteria":
			if err := requireJudgeAny(resp.Meta); err != nil {
				return err
			}
		}
	}
	return nil
}

func requireEmbeddings(meta map[string]any) error {
	assay, _ := meta["assay"].(map[string]any)
	embeddings, _ := assay["embeddings"].(map[string]any)
	if embeddings == nil {
		return missing("/assay/embeddings/*", "precompute-embeddings")
	}
	if _, ok := embeddings["response"]; !ok {
		return missing("/assay/embeddings/response", "precompute-embeddings")
	}
	if _, ok := embeddings["reference"]; !ok {
		return missing("/assay/embeddings/reference", "precompute-embeddings")
	}
	return nil
}

func requireJudge(meta map[string]any, rubricID string) error {
	assay, _ := meta["assay"].(map[string]any)
	judgeMap, _ := assay["judge"].(map[string]any)
	if judgeMap == nil {
		return missing(fmt.Sprintf("/assay/judge/%s", rubricID), "precompute-judge")
	}
	if _, ok := judgeMap[rubricID]; !ok {
		return missing(fmt.Sprintf("/assay/judge/%s", rubricID), "precompute-judge")
	}
	return nil
}

func requireJudgeAny(meta map[string]any) error {
	assay, _ := meta["assay"].(map[string]any)
	judgeMap, _ := assay["judge"].(map[string]any)
	if len(judgeMap) == 0 {
		return missing("/assay/judge/*", "precompute-judge")
	}
	return nil
}

func missing(path, precomputeCmd string) error {
	return diagnostic.New(diagnostic.EReplayStrictMissing, "strictguard.RequireMeta",
		fmt.Sprintf("replay-strict is active but %s is not present in the recorded response", path)).
		WithContext(map[string]any{"path": path}).
		WithFixSteps(fmt.Sprintf("Run `assay trace %s` to populate %s before replaying in strict mode", precomputeCmd, path))
}
