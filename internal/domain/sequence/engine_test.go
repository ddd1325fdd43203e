package sequence

import (
	"testing"

	"github.com/assay-dev/assay/internal/domain/policy"
)

func newEngine(t *testing.T, rules []policy.SequenceRule, aliases map[string][]string) *Engine {
	t.Helper()
	resolver, err := policy.NewResolver(aliases)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	pol := &policy.Policy{Sequences: rules}
	eng, err := NewEngine(pol, resolver, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return eng
}

func callsOf(tools ...string) []Call {
	calls := make([]Call, len(tools))
	for i, t := range tools {
		calls[i] = Call{Tool: t}
	}
	return calls
}

func TestRequire_SatisfiedWhenToolSeen(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleRequire, Tool: "audit_log"}}, nil)
	res, err := eng.Walk(callsOf("create", "audit_log", "update"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %v", res.Violations)
	}
}

func TestRequire_ViolatedWhenToolNeverSeen(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleRequire, Tool: "audit_log"}}, nil)
	res, err := eng.Walk(callsOf("create", "update"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestEventually_WithinDeadline(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleEventually, Tool: "confirm", Within: 3}}, nil)
	res, err := eng.Walk(callsOf("search", "confirm"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %v", res.Violations)
	}
}

func TestEventually_MissedDeadline(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleEventually, Tool: "confirm", Within: 1}}, nil)
	res, err := eng.Walk(callsOf("search", "search", "confirm"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
}

func TestMaxCalls_ExceedsLimit(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleMaxCalls, Tool: "retry", Max: 2}}, nil)
	res, err := eng.Walk(callsOf("retry", "retry", "retry"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestBefore_ViolatedWhenThenPrecedesFirst(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleBefore, First: "auth", Then: "write"}}, nil)
	res, err := eng.Walk(callsOf("write", "auth"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestBefore_SatisfiedWhenFirstPrecedesThen(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleBefore, First: "auth", Then: "write"}}, nil)
	res, err := eng.Walk(callsOf("auth", "write"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %v", res.Violations)
	}
}

func TestAfter_SatisfiedWithinWindow(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleAfter, Trigger: "create", Then: "audit", Within: 2}}, nil)
	res, err := eng.Walk(callsOf("create", "search", "audit"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations, got %v", res.Violations)
	}
}

func TestAfter_ViolatedWhenDeadlinePasses(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleAfter, Trigger: "create", Then: "audit", Within: 1}}, nil)
	res, err := eng.Walk(callsOf("create", "search", "update"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) == 0 {
		t.Fatal("expected at least one violation")
	}
}

func TestNeverAfter_ViolatedWhenForbiddenFollowsTrigger(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleNeverAfter, Trigger: "lock", Forbidden: "write"}}, nil)
	res, err := eng.Walk(callsOf("lock", "write"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestSequence_StrictViolatedOnDeviation(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleSequence, Tools: []string{"a", "b", "c"}, Strict: true}}, nil)
	res, err := eng.Walk(callsOf("a", "x", "b", "c"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) == 0 {
		t.Fatal("expected at least one violation for strict deviation")
	}
}

func TestSequence_LooseAllowsInterveningCalls(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleSequence, Tools: []string{"a", "b", "c"}, Strict: false}}, nil)
	res, err := eng.Walk(callsOf("a", "x", "b", "c"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations for loose sequence with intervening calls, got %v", res.Violations)
	}
}

func TestBlocklist_ViolatedOnPatternMatch(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleBlocklist, Pattern: "exec"}}, nil)
	res, err := eng.Walk(callsOf("list_files", "shell_exec"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestStaticDeny_BlocksTool(t *testing.T) {
	resolver, err := policy.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	pol := &policy.Policy{Tools: policy.Tools{Deny: []string{"drop_table"}}}
	eng, err := NewEngine(pol, resolver, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	res, err := eng.Walk(callsOf("drop_table"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if res.Steps[0].Verdict != VerdictBlocked {
		t.Errorf("expected step verdict Blocked, got %v", res.Steps[0].Verdict)
	}
}

func TestStaticAllow_BlocksUnlistedTool(t *testing.T) {
	resolver, err := policy.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	pol := &policy.Policy{Tools: policy.Tools{Allow: []string{"read_file"}}}
	eng, err := NewEngine(pol, resolver, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	res, err := eng.Walk(callsOf("write_file"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if res.Steps[0].Verdict != VerdictBlocked {
		t.Errorf("expected step verdict Blocked, got %v", res.Steps[0].Verdict)
	}
}

func TestAliasResolution_RequireMatchesAnyMember(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleRequire, Tool: "write_group"}},
		map[string][]string{"write_group": {"write_file", "write_db"}})
	res, err := eng.Walk(callsOf("write_db"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Errorf("expected no violations via alias match, got %v", res.Violations)
	}
}

func TestFirstBlockIndex_ReportsEarliestBlockedStep(t *testing.T) {
	eng := newEngine(t, []policy.SequenceRule{{Type: policy.RuleBlocklist, Pattern: "exec"}}, nil)
	res, err := eng.Walk(callsOf("list", "shell_exec", "shell_exec"))
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if res.FirstBlockIndex == nil || *res.FirstBlockIndex != 1 {
		t.Fatalf("expected FirstBlockIndex=1, got %v", res.FirstBlockIndex)
	}
}

func TestDecide_BlocksDeniedTool(t *testing.T) {
	resolver, err := policy.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	pol := &policy.Policy{Tools: policy.Tools{Deny: []string{"drop_table"}}}
	eng, err := NewEngine(pol, resolver, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	verdict, reason := eng.Decide("drop_table")
	if verdict != VerdictBlocked {
		t.Errorf("Decide() verdict = %v, want Blocked", verdict)
	}
	if reason == "" {
		t.Error("expected a non-empty reason for a blocked decision")
	}
}

func TestDecide_AllowsUnlistedToolWithNoAllowSet(t *testing.T) {
	resolver, err := policy.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver() error: %v", err)
	}
	eng, err := NewEngine(&policy.Policy{}, resolver, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	verdict, _ := eng.Decide("anything")
	if verdict != VerdictAllowed {
		t.Errorf("Decide() verdict = %v, want Allowed", verdict)
	}
}
