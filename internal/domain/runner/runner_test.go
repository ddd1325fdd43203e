package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/metric"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// scriptedProvider returns one trace.Response per call, in order, cycling
// on the last entry once exhausted. An entry with a non-nil err simulates a
// failed provider call instead of returning a response.
type scriptedProvider struct {
	responses []trace.Response
	errs      []error
	calls     int
}

func (p *scriptedProvider) Complete(_ context.Context, _ string, _ map[string]any) (trace.Response, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.responses[i], err
}

func (p *scriptedProvider) ProviderFingerprint() string { return "scripted" }

type fakeQuarantine struct {
	ids map[string]bool
}

func (f fakeQuarantine) IsQuarantined(testID string) bool { return f.ids[testID] }

type fakeBaseline struct {
	scores map[string]float64
}

func (f fakeBaseline) Lookup(testID, metricName string) (float64, bool) {
	v, ok := f.scores[testID+"/"+metricName]
	return v, ok
}

func newMustContainRegistry() *metric.Registry {
	return metric.NewRegistry(nil, nil)
}

func TestRunSuite_AllPassOnFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{{Text: "the quick brown fox"}}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite: "demo",
		Model: "test-model",
		Settings: config.Settings{
			Parallel: 2, TimeoutSeconds: 5, Retries: 3,
		},
		Tests: []TestCase{
			{ID: "t1", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick", "fox"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(result.Rows))
	}
	if result.Rows[0].Status != StatusPass {
		t.Fatalf("Status = %v, want Pass: %+v", result.Rows[0].Status, result.Rows[0])
	}
	if len(result.Rows[0].Attempts) != 1 {
		t.Fatalf("len(Attempts) = %d, want 1 (no retry needed)", len(result.Rows[0].Attempts))
	}
}

func TestRunSuite_RetriesUntilPass_ClassifiesFlaky(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{
		{Text: "missing the term"},
		{Text: "the quick brown fox"},
	}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 3},
		Tests: []TestCase{
			{ID: "t1", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick", "fox"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	row := result.Rows[0]
	if row.Status != StatusFlaky {
		t.Fatalf("Status = %v, want Flaky: %+v", row.Status, row)
	}
	if len(row.Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2", len(row.Attempts))
	}
}

func TestRunSuite_ExhaustsRetries_DeterministicFail(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{{Text: "never matches"}}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 2},
		Tests: []TestCase{
			{ID: "t1", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	if result.Rows[0].Status != StatusFail {
		t.Fatalf("Status = %v, want Fail", result.Rows[0].Status)
	}
	if len(result.Rows[0].Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2 (retries exhausted)", len(result.Rows[0].Attempts))
	}
}

func TestRunSuite_ProviderError_DeterministicError(t *testing.T) {
	provider := &scriptedProvider{
		responses: []trace.Response{{}},
		errs:      []error{errors.New("connection refused")},
	}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 1},
		Tests: []TestCase{
			{ID: "t1", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	if result.Rows[0].Status != StatusError {
		t.Fatalf("Status = %v, want Error", result.Rows[0].Status)
	}
}

func TestRunSuite_QuarantineWarnOverlay(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{{Text: "never matches"}}}
	quarantine := fakeQuarantine{ids: map[string]bool{"t1": true}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), quarantine, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 1, Quarantine: "warn"},
		Tests: []TestCase{
			{ID: "t1", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	if result.Rows[0].Status != StatusWarn {
		t.Fatalf("Status = %v, want Warn under quarantine warn overlay", result.Rows[0].Status)
	}
}

func TestRunSuite_BaselineRegression_NoRegressionWhenScoreMatchesBaseline(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{{Text: "the quick brown fox"}}}
	baseline := fakeBaseline{scores: map[string]float64{"t1/must_contain": 1.0}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, baseline)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 1},
		Tests: []TestCase{
			{
				ID:     "t1",
				Prompt: "p1",
				Expected: map[string]any{
					"must_contain": []any{"quick", "fox"},
					"thresholding": map[string]any{"mode": "relative", "max_drop": 0.01},
				},
			},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	row := result.Rows[0]
	if row.Status != StatusPass {
		t.Fatalf("Status = %v, want Pass (score 1.0 from must_contain matches baseline 1.0)", row.Status)
	}
}

func TestRunSuite_BaselineRegression_FailsBeyondMaxDrop(t *testing.T) {
	// cosine similarity between [1,0] and [0.9,0.436] is 0.9 (0.9^2+0.436^2
	// rounds to 1.0), comfortably above min_score so the metric itself
	// passes; the regression check must still fail it since 0.1 exceeds
	// the declared max_drop of 0.01 against a baseline of 1.0.
	resp := trace.Response{
		Text: "doesn't matter",
		Meta: map[string]any{
			"assay": map[string]any{
				"embeddings": map[string]any{
					"response":  []any{1.0, 0.0},
					"reference": []any{0.9, 0.436},
				},
			},
		},
	}
	provider := &scriptedProvider{responses: []trace.Response{resp}}
	baseline := fakeBaseline{scores: map[string]float64{"t1/semantic_similarity_to": 1.0}}
	r := NewRunner(nil, provider, nil, metric.NewRegistry(nil, nil), nil, baseline)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 1},
		Tests: []TestCase{
			{
				ID:     "t1",
				Prompt: "p1",
				Expected: map[string]any{
					"semantic_similarity_to": "reference text",
					"min_score":              0.5,
					"thresholding":           map[string]any{"mode": "relative", "max_drop": 0.01},
				},
			},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	row := result.Rows[0]
	if row.Status != StatusFail {
		t.Fatalf("Status = %v, want Fail (score ~0.9 dropped from baseline 1.0 beyond max_drop 0.01)", row.Status)
	}
	if row.Details["baseline"] == nil {
		t.Fatalf("Details[\"baseline\"] not set, want a regression note")
	}
}

func TestRunSuite_Assertions_DowngradeToFail(t *testing.T) {
	resp := trace.Response{
		Text: "the quick brown fox",
		Meta: map[string]any{
			"tool_calls": []map[string]any{
				{"tool_name": "delete_database", "index": 0},
			},
		},
	}
	provider := &scriptedProvider{responses: []trace.Response{resp}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 1, TimeoutSeconds: 5, Retries: 1},
		Tests: []TestCase{
			{
				ID:       "t1",
				Prompt:   "p1",
				Expected: map[string]any{"must_contain": []any{"quick", "fox"}},
				Assertions: []map[string]any{
					{"type": "blocklist", "pattern": "delete"},
				},
			},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	row := result.Rows[0]
	if row.Status != StatusFail {
		t.Fatalf("Status = %v, want Fail due to blocklist assertion violation: %+v", row.Status, row.Details)
	}
	if row.Details["assertions"] == nil {
		t.Fatalf("Details[assertions] missing, want violation messages")
	}
}

func TestRunSuite_MultipleTests_SortedByTestID(t *testing.T) {
	provider := &scriptedProvider{responses: []trace.Response{{Text: "the quick brown fox"}}}
	r := NewRunner(nil, provider, nil, newMustContainRegistry(), nil, nil)

	in := SuiteInput{
		Suite:    "demo",
		Settings: config.Settings{Parallel: 4, TimeoutSeconds: 5, Retries: 1},
		Tests: []TestCase{
			{ID: "zeta", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
			{ID: "alpha", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
			{ID: "mid", Prompt: "p1", Expected: map[string]any{"must_contain": []any{"quick"}}},
		},
	}

	result, err := r.RunSuite(context.Background(), in)
	if err != nil {
		t.Fatalf("RunSuite() error: %v", err)
	}
	ids := []string{result.Rows[0].TestID, result.Rows[1].TestID, result.Rows[2].TestID}
	if ids[0] != "alpha" || ids[1] != "mid" || ids[2] != "zeta" {
		t.Fatalf("Rows not sorted by TestID: %v", ids)
	}
}
