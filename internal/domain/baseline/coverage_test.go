package baseline

import (
	"testing"

	"github.com/assay-dev/assay/internal/domain/policy"
)

func testPolicy(t *testing.T) (*policy.Policy, *policy.Resolver) {
	t.Helper()
	pol := &policy.Policy{
		Version: "1",
		Name:    "test-policy",
		Tools: policy.Tools{
			Allow: []string{"read_file", "write_group"},
			Deny:  []string{"delete_database"},
		},
		Sequences: []policy.SequenceRule{
			{ID: "r1", Type: policy.RuleRequire, Tool: "read_file"},
			{ID: "r2", Type: policy.RuleMaxCalls, Tool: "write_group", Max: 3},
		},
		Aliases: map[string][]string{
			"write_group": {"write_file", "append_file"},
		},
	}
	resolver, err := policy.NewResolver(pol.Aliases)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	return pol, resolver
}

func TestComputeCoverage_FullCoverage(t *testing.T) {
	pol, resolver := testPolicy(t)
	traces := []TraceRecord{
		{TraceID: "tr1", ToolsCalled: []string{"read_file", "write_file"}, RulesTriggered: []string{"r1", "r2"}},
	}

	report := ComputeCoverage(pol, resolver, traces, 0.5)

	if report.ToolCoverage != 1.0 {
		t.Fatalf("ToolCoverage = %v, want 1.0", report.ToolCoverage)
	}
	if report.RuleCoverage != 1.0 {
		t.Fatalf("RuleCoverage = %v, want 1.0", report.RuleCoverage)
	}
	if !report.MeetsThreshold {
		t.Fatalf("MeetsThreshold = false, want true")
	}
	if len(report.HighRiskGaps) != 1 || report.HighRiskGaps[0] != "delete_database" {
		t.Fatalf("HighRiskGaps = %v, want [delete_database]", report.HighRiskGaps)
	}
}

func TestComputeCoverage_UnexpectedTool(t *testing.T) {
	pol, resolver := testPolicy(t)
	traces := []TraceRecord{
		{TraceID: "tr1", ToolsCalled: []string{"read_file", "shell_exec"}},
	}

	report := ComputeCoverage(pol, resolver, traces, 0.5)

	if len(report.UnexpectedTools) != 1 || report.UnexpectedTools[0] != "shell_exec" {
		t.Fatalf("UnexpectedTools = %v, want [shell_exec]", report.UnexpectedTools)
	}
}

func TestComputeCoverage_NoTraces_ZeroCoverage(t *testing.T) {
	pol, resolver := testPolicy(t)

	report := ComputeCoverage(pol, resolver, nil, 0.5)

	if report.ToolCoverage != 0 {
		t.Fatalf("ToolCoverage = %v, want 0", report.ToolCoverage)
	}
	if report.MeetsThreshold {
		t.Fatalf("MeetsThreshold = true, want false with no traces")
	}
	if len(report.HighRiskGaps) != 1 {
		t.Fatalf("HighRiskGaps = %v, want deny tool listed as gap", report.HighRiskGaps)
	}
}

func TestComputeCoverage_EmptyPolicy_MeetsThresholdByDefault(t *testing.T) {
	pol := &policy.Policy{}
	resolver, err := policy.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}

	report := ComputeCoverage(pol, resolver, nil, 1.0)

	if report.Overall != 1.0 {
		t.Fatalf("Overall = %v, want 1.0 when policy declares nothing", report.Overall)
	}
	if !report.MeetsThreshold {
		t.Fatalf("MeetsThreshold = false, want true")
	}
}
