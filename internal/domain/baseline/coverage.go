package baseline

import (
	"sort"

	"github.com/assay-dev/assay/internal/domain/policy"
)

// ComputeCoverage aggregates traces against pol: the fraction of the
// policy's declared tools actually observed, the fraction of its sequence
// rules actually triggered, any deny-listed tool never observed in any
// trace (a "high-risk gap" — the unproven negative), and any observed tool
// the policy never declared at all.
func ComputeCoverage(pol *policy.Policy, resolver *policy.Resolver, traces []TraceRecord, threshold float64) *CoverageReport {
	policyTools := expandAll(resolver, append(append(append([]string{}, pol.Tools.Allow...), pol.Tools.Deny...), requireArgsKeys(pol)...))
	denyTools := expandAll(resolver, pol.Tools.Deny)

	observed := map[string]bool{}
	triggered := map[string]bool{}
	for _, t := range traces {
		for _, tool := range t.ToolsCalled {
			observed[tool] = true
		}
		for _, rule := range t.RulesTriggered {
			triggered[rule] = true
		}
	}

	var observedList, unexpected, highRisk, triggeredList []string
	for tool := range observed {
		observedList = append(observedList, tool)
		if !policyTools[tool] {
			unexpected = append(unexpected, tool)
		}
	}
	for tool := range denyTools {
		if !observed[tool] {
			highRisk = append(highRisk, tool)
		}
	}
	for rule := range triggered {
		triggeredList = append(triggeredList, rule)
	}

	sort.Strings(observedList)
	sort.Strings(unexpected)
	sort.Strings(highRisk)
	sort.Strings(triggeredList)

	toolCoverage := ratio(len(intersect(policyTools, observed)), len(policyTools))
	ruleCoverage := ratio(len(triggered), len(pol.Sequences))
	overall := (toolCoverage + ruleCoverage) / 2

	return &CoverageReport{
		ToolCoverage:    toolCoverage,
		RuleCoverage:    ruleCoverage,
		Overall:         overall,
		MeetsThreshold:  overall >= threshold,
		HighRiskGaps:    highRisk,
		UnexpectedTools: unexpected,
		ObservedTools:   observedList,
		TriggeredRules:  triggeredList,
	}
}

func requireArgsKeys(pol *policy.Policy) []string {
	keys := make([]string, 0, len(pol.Tools.RequireArgs))
	for k := range pol.Tools.RequireArgs {
		keys = append(keys, k)
	}
	return keys
}

// expandAll resolves every name in names through resolver (alias members,
// or itself if not an alias) into a concrete-tool-name set.
func expandAll(resolver *policy.Resolver, names []string) map[string]bool {
	out := map[string]bool{}
	for _, name := range names {
		for _, member := range resolver.Resolve(name) {
			out[member] = true
		}
	}
	return out
}

func intersect(a map[string]bool, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func ratio(count, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(count) / float64(total)
}
