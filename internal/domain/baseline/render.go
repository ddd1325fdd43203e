package baseline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderDiffJSON marshals a DiffResult as indented JSON.
func RenderDiffJSON(diff *DiffResult) ([]byte, error) {
	return json.MarshalIndent(diff, "", "  ")
}

// RenderDiffMarkdown renders diff as a markdown report with one table per
// section, omitting empty sections.
func RenderDiffMarkdown(diff *DiffResult) string {
	var b strings.Builder
	b.WriteString("# Baseline diff\n\n")

	if len(diff.Regressions) > 0 {
		b.WriteString("## Regressions\n\n")
		b.WriteString("| test | metric | baseline | candidate | delta |\n|---|---|---|---|---|\n")
		for _, e := range diff.Regressions {
			fmt.Fprintf(&b, "| %s | %s | %.4f | %.4f | %.4f |\n", e.TestID, e.Metric, e.BaselineScore, e.CandidateScore, e.Delta)
		}
		b.WriteString("\n")
	}
	if len(diff.Improvements) > 0 {
		b.WriteString("## Improvements\n\n")
		b.WriteString("| test | metric | baseline | candidate | delta |\n|---|---|---|---|---|\n")
		for _, e := range diff.Improvements {
			fmt.Fprintf(&b, "| %s | %s | %.4f | %.4f | %.4f |\n", e.TestID, e.Metric, e.BaselineScore, e.CandidateScore, e.Delta)
		}
		b.WriteString("\n")
	}
	if len(diff.NewTests) > 0 {
		b.WriteString("## New tests\n\n")
		for _, k := range diff.NewTests {
			fmt.Fprintf(&b, "- %s (%s)\n", k.TestID, k.Metric)
		}
		b.WriteString("\n")
	}
	if len(diff.MissingTests) > 0 {
		b.WriteString("## Missing tests\n\n")
		for _, k := range diff.MissingTests {
			fmt.Fprintf(&b, "- %s (%s)\n", k.TestID, k.Metric)
		}
		b.WriteString("\n")
	}
	if len(diff.Regressions) == 0 && len(diff.Improvements) == 0 && len(diff.NewTests) == 0 && len(diff.MissingTests) == 0 {
		b.WriteString("No changes against the baseline.\n")
	}
	return b.String()
}

// RenderCoverageJSON marshals a CoverageReport as indented JSON.
func RenderCoverageJSON(report *CoverageReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// RenderCoverageMarkdown renders report as a short markdown summary.
func RenderCoverageMarkdown(report *CoverageReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Coverage\n\ntool coverage: %.1f%%\nrule coverage: %.1f%%\noverall: %.1f%% (threshold met: %t)\n",
		report.ToolCoverage*100, report.RuleCoverage*100, report.Overall*100, report.MeetsThreshold)
	if len(report.HighRiskGaps) > 0 {
		fmt.Fprintf(&b, "\nhigh-risk gaps (deny-listed, never observed): %s\n", strings.Join(report.HighRiskGaps, ", "))
	}
	if len(report.UnexpectedTools) > 0 {
		fmt.Fprintf(&b, "\nunexpected tools (observed, not in policy): %s\n", strings.Join(report.UnexpectedTools, ", "))
	}
	return b.String()
}

// RenderCoverageGitHubAnnotations renders report as GitHub Actions
// `::warning`/`::error` workflow-command annotations: one per high-risk
// gap (error — an unproven deny-list negative) and one per unexpected tool
// (warning), plus a final notice line with the overall numbers.
func RenderCoverageGitHubAnnotations(report *CoverageReport) string {
	var b strings.Builder
	for _, tool := range report.HighRiskGaps {
		fmt.Fprintf(&b, "::error::high-risk gap: deny-listed tool %q was never observed in any trace\n", tool)
	}
	for _, tool := range report.UnexpectedTools {
		fmt.Fprintf(&b, "::warning::unexpected tool %q observed but not declared in policy\n", tool)
	}
	fmt.Fprintf(&b, "::notice::coverage: tool=%.1f%% rule=%.1f%% overall=%.1f%% meets_threshold=%t\n",
		report.ToolCoverage*100, report.RuleCoverage*100, report.Overall*100, report.MeetsThreshold)
	return b.String()
}
