package stdio

import (
	"sort"

	"github.com/assay-dev/assay/internal/domain/policy"
)

// PolicyCoverageChecker implements CoverageChecker by loading the policy
// file at the resolved path and comparing its declared tool
// allow/deny lists (after alias expansion) against the tool names the
// caller reports having observed. It is the MCP surface's thin view onto
// C10's coverage analysis — a single flat observed-tool list rather than
// the full TraceRecord set internal/domain/baseline.ComputeCoverage
// consumes for the `assay coverage` CLI report, so no rule coverage is
// reported here.
type PolicyCoverageChecker struct{}

// NewPolicyCoverageChecker builds a PolicyCoverageChecker.
func NewPolicyCoverageChecker() *PolicyCoverageChecker {
	return &PolicyCoverageChecker{}
}

// CheckCoverage implements CoverageChecker.
func (c *PolicyCoverageChecker) CheckCoverage(baselinePath string, observedTools []string) (*CoverageReport, error) {
	loaded, err := policy.LoadFile(baselinePath)
	if err != nil {
		return nil, err
	}

	allow := expandTools(loaded.Resolver, loaded.Policy.Tools.Allow)
	deny := expandTools(loaded.Resolver, loaded.Policy.Tools.Deny)

	universe := allow
	if len(universe) == 0 {
		universe = deny
	}

	observed := map[string]bool{}
	for _, t := range observedTools {
		observed[t] = true
	}

	var covered, missing, highRisk []string
	for tool := range universe {
		if observed[tool] {
			covered = append(covered, tool)
		} else {
			missing = append(missing, tool)
		}
	}
	for tool := range deny {
		if !observed[tool] {
			highRisk = append(highRisk, tool)
		}
	}
	sort.Strings(covered)
	sort.Strings(missing)
	sort.Strings(highRisk)

	ratio := 1.0
	if len(universe) > 0 {
		ratio = float64(len(covered)) / float64(len(universe))
	}

	return &CoverageReport{
		CoveredTools:  covered,
		MissingTools:  missing,
		HighRiskGaps:  highRisk,
		CoverageRatio: ratio,
	}, nil
}

func expandTools(resolver *policy.Resolver, names []string) map[string]bool {
	out := map[string]bool{}
	for _, name := range names {
		for _, member := range resolver.Resolve(name) {
			out[member] = true
		}
	}
	return out
}
