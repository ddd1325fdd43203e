package runner

import "fmt"

// baselineEpsilon guards the regression comparison against floating-point
// noise, matching the epsilon convention C8's threshold metrics already use.
const baselineEpsilon = 1e-6

// BaselineChecker is the narrow interface the runner needs from C10 to
// apply a per-test regression check: the last recorded score for
// (testID, metric), if any.
type BaselineChecker interface {
	Lookup(testID, metric string) (score float64, ok bool)
}

// relativeThresholding reads an Expected variant's optional inline
// thresholding block. Only mode="relative" triggers a baseline comparison;
// any other value (or an absent block) means no regression check applies.
func relativeThresholding(expected map[string]any) (maxDrop float64, metricName string, ok bool) {
	raw, has := expected["thresholding"]
	if !has {
		return 0, "", false
	}
	block, isMap := raw.(map[string]any)
	if !isMap {
		return 0, "", false
	}
	if mode, _ := block["mode"].(string); mode != "relative" {
		return 0, "", false
	}
	maxDrop = floatField(block["max_drop"])
	for key := range expected {
		switch key {
		case "thresholding", "min_score", "schema", "rules", "sequence", "blocked":
			// parameter keys of a variant, never its discriminator
			continue
		}
		metricName = key
		break
	}
	return maxDrop, metricName, true
}

func floatField(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

// checkBaselineRegression applies spec.md §4.9 step 6: a score that has
// dropped by more than maxDrop relative to the baseline fails the test; a
// missing baseline entry downgrades a passing status to Warn rather than
// failing outright, since there is nothing yet to regress against.
func checkBaselineRegression(checker BaselineChecker, testID string, expected map[string]any, score float64, status TestStatus) (TestStatus, string) {
	if checker == nil {
		return status, ""
	}
	maxDrop, metricName, ok := relativeThresholding(expected)
	if !ok {
		return status, ""
	}

	baselineScore, found := checker.Lookup(testID, metricName)
	if !found {
		if status == StatusPass {
			status = StatusWarn
		}
		return status, "no baseline entry found for regression check"
	}

	delta := score - baselineScore
	if delta < -maxDrop-baselineEpsilon {
		return StatusFail, fmt.Sprintf("regression: score %.4f dropped %.4f from baseline %.4f (max_drop %.4f)",
			score, -delta, baselineScore, maxDrop)
	}
	return status, ""
}
