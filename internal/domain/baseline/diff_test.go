package baseline

import "testing"

func TestDiff_RegressionBeyondEpsilon(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "semantic_similarity", Score: 0.70}}}
	reference := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "semantic_similarity", Score: 0.90}}}

	diff := Diff(candidate, reference)

	if len(diff.Regressions) != 1 {
		t.Fatalf("Regressions = %v, want 1 entry", diff.Regressions)
	}
	if diff.Regressions[0].Delta >= 0 {
		t.Fatalf("Delta = %v, want negative", diff.Regressions[0].Delta)
	}
	if len(diff.Improvements) != 0 || len(diff.NewTests) != 0 || len(diff.MissingTests) != 0 {
		t.Fatalf("unexpected non-regression entries: %+v", diff)
	}
}

func TestDiff_ImprovementBeyondEpsilon(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "score", Score: 0.95}}}
	reference := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "score", Score: 0.80}}}

	diff := Diff(candidate, reference)

	if len(diff.Improvements) != 1 {
		t.Fatalf("Improvements = %v, want 1 entry", diff.Improvements)
	}
}

func TestDiff_WithinEpsilon_NoChange(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "score", Score: 0.800000001}}}
	reference := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "score", Score: 0.8}}}

	diff := Diff(candidate, reference)

	if len(diff.Regressions) != 0 || len(diff.Improvements) != 0 {
		t.Fatalf("expected no change within epsilon, got %+v", diff)
	}
}

func TestDiff_NewAndMissingTests(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{
		{TestID: "new_test", Metric: "score", Score: 1.0},
	}}
	reference := &Baseline{Entries: []Entry{
		{TestID: "removed_test", Metric: "score", Score: 1.0},
	}}

	diff := Diff(candidate, reference)

	if len(diff.NewTests) != 1 || diff.NewTests[0].TestID != "new_test" {
		t.Fatalf("NewTests = %+v, want [new_test]", diff.NewTests)
	}
	if len(diff.MissingTests) != 1 || diff.MissingTests[0].TestID != "removed_test" {
		t.Fatalf("MissingTests = %+v, want [removed_test]", diff.MissingTests)
	}
}

func TestDiff_DeterministicOrdering(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{
		{TestID: "zeta", Metric: "score", Score: 0.5},
		{TestID: "alpha", Metric: "score", Score: 0.5},
	}}
	reference := &Baseline{Entries: []Entry{
		{TestID: "zeta", Metric: "score", Score: 0.9},
		{TestID: "alpha", Metric: "score", Score: 0.9},
	}}

	diff := Diff(candidate, reference)

	if len(diff.Regressions) != 2 {
		t.Fatalf("Regressions = %+v, want 2 entries", diff.Regressions)
	}
	if diff.Regressions[0].TestID != "alpha" || diff.Regressions[1].TestID != "zeta" {
		t.Fatalf("Regressions not sorted by test_id: %+v", diff.Regressions)
	}
}

func TestDiff_NilReference_AllNewTests(t *testing.T) {
	candidate := &Baseline{Entries: []Entry{{TestID: "t1", Metric: "score", Score: 1.0}}}

	diff := Diff(candidate, nil)

	if len(diff.NewTests) != 1 {
		t.Fatalf("NewTests = %+v, want 1 entry when reference is nil", diff.NewTests)
	}
}
