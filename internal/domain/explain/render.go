package explain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/assay-dev/assay/internal/domain/sequence"
)

// RenderJSON marshals the explanation as indented JSON.
func RenderJSON(exp *TraceExplanation) ([]byte, error) {
	return json.MarshalIndent(exp, "", "  ")
}

// RenderTerminal renders a unicode-icon, indented terminal view of exp.
func RenderTerminal(exp *TraceExplanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy %s (v%s) — %d steps, %d allowed, %d blocked\n",
		exp.PolicyName, exp.PolicyVersion, exp.TotalSteps, exp.AllowedSteps, exp.BlockedSteps)

	for _, step := range exp.Steps {
		icon := "✔"
		if step.Verdict == sequence.VerdictBlocked {
			icon = "✘"
		} else if step.Verdict == sequence.VerdictWarning {
			icon = "⚠"
		}
		fmt.Fprintf(&b, "%s [%d] %s\n", icon, step.Index, step.Tool)
		for _, e := range step.Evaluations {
			if e.Passed {
				continue
			}
			fmt.Fprintf(&b, "    ✘ %s (%s): %s\n", e.RuleID, e.RuleType, e.Explanation)
		}
	}

	if exp.FirstBlockIndex != nil {
		fmt.Fprintf(&b, "first blocked step: %d\n", *exp.FirstBlockIndex)
	}
	return b.String()
}

// RenderMarkdown renders exp as a markdown table.
func RenderMarkdown(exp *TraceExplanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s (v%s)\n\n", exp.PolicyName, exp.PolicyVersion)
	fmt.Fprintf(&b, "%d steps, %d allowed, %d blocked\n\n", exp.TotalSteps, exp.AllowedSteps, exp.BlockedSteps)
	b.WriteString("| step | tool | verdict | notes |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, step := range exp.Steps {
		notes := "-"
		var failing []string
		for _, e := range step.Evaluations {
			if !e.Passed {
				failing = append(failing, e.Explanation)
			}
		}
		if len(failing) > 0 {
			notes = strings.Join(failing, "; ")
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", step.Index, step.Tool, step.Verdict, notes)
	}
	return b.String()
}

// RenderHTML renders exp with semantic classes (allowed/blocked/warning)
// for styling by a calling report template.
func RenderHTML(exp *TraceExplanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<section class=\"trace-explanation\">\n")
	fmt.Fprintf(&b, "  <h2>%s (v%s)</h2>\n", htmlEscape(exp.PolicyName), htmlEscape(exp.PolicyVersion))
	b.WriteString("  <ol class=\"steps\">\n")
	for _, step := range exp.Steps {
		class := "allowed"
		if step.Verdict == sequence.VerdictBlocked {
			class = "blocked"
		} else if step.Verdict == sequence.VerdictWarning {
			class = "warning"
		}
		fmt.Fprintf(&b, "    <li class=\"%s\">%s<ul class=\"evaluations\">\n", class, htmlEscape(step.Tool))
		for _, e := range step.Evaluations {
			if e.Passed {
				continue
			}
			fmt.Fprintf(&b, "      <li class=\"violation\">%s: %s</li>\n", htmlEscape(e.RuleID), htmlEscape(e.Explanation))
		}
		b.WriteString("    </ul></li>\n")
	}
	b.WriteString("  </ol>\n</section>\n")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
