package sequence

import (
	"fmt"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"github.com/assay-dev/assay/internal/domain/policy"
)

// ConditionEvaluator compiles and evaluates a SequenceRule's optional CEL
// Condition guard. Satisfied by internal/adapter/outbound/cel.Evaluator.
type ConditionEvaluator interface {
	Compile(expression string) (celgo.Program, error)
	Evaluate(prg celgo.Program, ruleCtx policy.RuleContext) (bool, error)
}

// Engine walks a stream of tool calls against a Policy's static tool
// allow/deny lists and sequence rules, producing a step-by-step Result.
type Engine struct {
	pol      *policy.Policy
	resolver *policy.Resolver
	cel      ConditionEvaluator
	guards   map[int]celgo.Program // rule index -> compiled Condition, when set
}

// NewEngine builds an Engine for pol. cel may be nil when no rule in pol
// uses a Condition guard. Every Condition in pol is compiled here, up
// front; a missing evaluator or a compile error fails construction.
func NewEngine(pol *policy.Policy, resolver *policy.Resolver, cel ConditionEvaluator) (*Engine, error) {
	e := &Engine{pol: pol, resolver: resolver, cel: cel, guards: map[int]celgo.Program{}}
	for i, rule := range pol.Sequences {
		if rule.Condition == "" {
			continue
		}
		if e.cel == nil {
			return nil, fmt.Errorf("sequence rule %d has a condition but no CEL evaluator was configured", i)
		}
		prg, err := e.cel.Compile(rule.Condition)
		if err != nil {
			return nil, fmt.Errorf("compile condition for sequence rule %d: %w", i, err)
		}
		e.guards[i] = prg
	}
	return e, nil
}

// staticVerdict applies the deny-then-allow static pre-check, independent of
// the sequence rules. The second return value is the explanation.
func (e *Engine) staticVerdict(tool string) (Verdict, string) {
	if e.resolver.IsMemberOfAny(tool, e.pol.Tools.Deny) {
		return VerdictBlocked, fmt.Sprintf("tool %q is on the policy deny list", tool)
	}
	if len(e.pol.Tools.Allow) > 0 && !e.resolver.IsMemberOfAny(tool, e.pol.Tools.Allow) {
		return VerdictBlocked, fmt.Sprintf("tool %q is not on the policy allow list", tool)
	}
	return VerdictAllowed, ""
}

// Decide applies the static tool allow/deny pre-check for a single tool
// name, independent of sequence rule state. Used for one-shot policy
// decisions that don't carry a call history.
func (e *Engine) Decide(tool string) (Verdict, string) {
	return e.staticVerdict(tool)
}

// guardAllows reports whether rule i's step-check should run for the given
// context. A rule with no Condition always runs.
func (e *Engine) guardAllows(i int, rc policy.RuleContext) (bool, error) {
	prg, ok := e.guards[i]
	if !ok {
		return true, nil
	}
	return e.cel.Evaluate(prg, rc)
}

// ruleState is the mutable per-rule bookkeeping carried across the walk.
type ruleState struct {
	// require
	requireSeen bool
	// eventually
	eventuallyFoundIdx *int
	// maxCalls
	maxCallsCount int
	// before
	beforeFirstIdx *int
	// after
	afterPendingTriggerIdx *int
	afterDeadline          int
	afterViolated          bool
	// neverAfter
	neverAfterTriggered   bool
	neverAfterTriggerIdx  int
	neverAfterViolated    bool
	// sequence (non-strict)
	sequenceIdx int
	// sequence (strict)
	sequenceStrictIdx     int
	sequenceStrictStarted bool
	sequenceStrictStartIdx int
	sequenceStrictBroken  bool
}

// Walk evaluates pol's sequence rules over calls, producing a full Result
// with per-step verdicts and evaluations, plus end-of-trace violations.
func (e *Engine) Walk(calls []Call) (*Result, error) {
	states := make([]ruleState, len(e.pol.Sequences))
	callCounts := map[string]int{}
	result := &Result{Steps: make([]Step, 0, len(calls))}

	for idx, call := range calls {
		callCounts[call.Tool]++

		step := Step{
			Index:      idx,
			Tool:       call.Tool,
			Args:       call.Args,
			CallCounts: cloneCounts(callCounts),
		}

		verdict, reason := e.staticVerdict(call.Tool)
		if verdict == VerdictBlocked {
			step.Evaluations = append(step.Evaluations, RuleEvaluation{
				RuleID:      "static",
				RuleType:    "",
				Passed:      false,
				Explanation: reason,
			})
		}

		rc := policy.RuleContext{StepIndex: idx, Tool: call.Tool, Args: call.Args, CallCounts: callCounts}

		for ri := range e.pol.Sequences {
			rule := e.pol.Sequences[ri]
			applies, err := e.guardAllows(ri, rc)
			if err != nil {
				return nil, fmt.Errorf("evaluate condition guard for rule %q: %w", ruleID(rule, ri), err)
			}
			if !applies {
				continue
			}

			eval := e.stepCheck(ri, &states[ri], rule, call, idx, callCounts)
			step.Evaluations = append(step.Evaluations, eval)
			if !eval.Passed {
				verdict = VerdictBlocked
				result.Violations = append(result.Violations, eval)
			}
		}

		step.Verdict = verdict
		result.Steps = append(result.Steps, step)
	}

	// End-of-trace checks.
	for ri := range e.pol.Sequences {
		rule := e.pol.Sequences[ri]
		if eval := e.endCheck(ri, &states[ri], rule, len(calls)); eval != nil {
			result.Violations = append(result.Violations, *eval)
		}
	}

	blocking := map[string]struct{}{}
	for _, v := range result.Violations {
		blocking[v.RuleID] = struct{}{}
	}
	for id := range blocking {
		result.BlockingRules = append(result.BlockingRules, id)
	}

	for i, s := range result.Steps {
		if s.Verdict == VerdictBlocked {
			idx := i
			result.FirstBlockIndex = &idx
			break
		}
	}

	return result, nil
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ruleID returns rule's declared ID, or its DefaultID when left blank — a
// rule built in-memory (e.g. in a test) rather than loaded via
// policy.LoadFile may still lack one, since LoadFile is what normally
// assigns it.
func ruleID(rule policy.SequenceRule, idx int) string {
	if rule.ID != "" {
		return rule.ID
	}
	return rule.DefaultID(idx)
}

// stepCheck runs one rule's per-step check against the call at idx, mutating
// st as needed, and returns its RuleEvaluation.
func (e *Engine) stepCheck(ri int, st *ruleState, rule policy.SequenceRule, call Call, idx int, callCounts map[string]int) RuleEvaluation {
	id := ruleID(rule, ri)
	switch rule.Type {
	case policy.RuleRequire:
		targets := e.resolver.Resolve(rule.Tool)
		if contains(targets, call.Tool) {
			st.requireSeen = true
		}
		// Require only fails at end-of-trace; every step passes here.
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("require(%s): pending until end of trace", rule.Tool)}

	case policy.RuleEventually:
		targets := e.resolver.Resolve(rule.Tool)
		if st.eventuallyFoundIdx == nil && contains(targets, call.Tool) {
			i := idx
			st.eventuallyFoundIdx = &i
		}
		if st.eventuallyFoundIdx != nil {
			if uint64(*st.eventuallyFoundIdx) < rule.Within {
				return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
					Explanation: fmt.Sprintf("tool %q observed at index %d within %d", rule.Tool, *st.eventuallyFoundIdx, rule.Within)}
			}
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("tool %q appeared at index %d but must appear within first %d calls", rule.Tool, *st.eventuallyFoundIdx, rule.Within)}
		}
		if uint64(idx) >= rule.Within {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("tool %q required within first %d calls but not found by index %d", rule.Tool, rule.Within, idx)}
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("tool %q not yet due (within %d)", rule.Tool, rule.Within)}

	case policy.RuleMaxCalls:
		targets := e.resolver.Resolve(rule.Tool)
		if contains(targets, call.Tool) {
			st.maxCallsCount++
		}
		if uint64(st.maxCallsCount) > rule.Max {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("tool %q exceeded max calls (%d > %d)", rule.Tool, st.maxCallsCount, rule.Max),
				Context:     map[string]any{"max": rule.Max, "actual": st.maxCallsCount}}
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("tool %q call count %d <= %d", rule.Tool, st.maxCallsCount, rule.Max)}

	case policy.RuleBefore:
		firstTargets := e.resolver.Resolve(rule.First)
		thenTargets := e.resolver.Resolve(rule.Then)
		if st.beforeFirstIdx == nil && contains(firstTargets, call.Tool) {
			i := idx
			st.beforeFirstIdx = &i
		}
		if !contains(thenTargets, call.Tool) {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
				Explanation: fmt.Sprintf("before(%s,%s): not a %q call", rule.First, rule.Then, rule.Then)}
		}
		if st.beforeFirstIdx != nil {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
				Explanation: fmt.Sprintf("%q at index %d preceded by %q at index %d", rule.Then, idx, rule.First, *st.beforeFirstIdx)}
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
			Explanation: fmt.Sprintf("%q at index %d requires %q to be called first", rule.Then, idx, rule.First)}

	case policy.RuleAfter:
		triggerTargets := e.resolver.Resolve(rule.Trigger)
		thenTargets := e.resolver.Resolve(rule.Then)

		if st.afterPendingTriggerIdx != nil && contains(thenTargets, call.Tool) {
			st.afterPendingTriggerIdx = nil
		}
		violated := false
		if st.afterPendingTriggerIdx != nil && idx > st.afterDeadline {
			violated = true
			st.afterViolated = true
			st.afterPendingTriggerIdx = nil
		}
		if contains(triggerTargets, call.Tool) {
			i := idx
			st.afterPendingTriggerIdx = &i
			st.afterDeadline = idx + int(rule.Within)
		}
		if violated {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("%q required within %d calls after %q but deadline passed by index %d", rule.Then, rule.Within, rule.Trigger, idx)}
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("after(%s,%s,%d): on track", rule.Trigger, rule.Then, rule.Within)}

	case policy.RuleNeverAfter:
		triggerTargets := e.resolver.Resolve(rule.Trigger)
		forbiddenTargets := e.resolver.Resolve(rule.Forbidden)
		if st.neverAfterTriggered && contains(forbiddenTargets, call.Tool) {
			st.neverAfterViolated = true
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("%q at index %d is forbidden after %q (triggered at index %d)", rule.Forbidden, idx, rule.Trigger, st.neverAfterTriggerIdx)}
		}
		if !st.neverAfterTriggered && contains(triggerTargets, call.Tool) {
			st.neverAfterTriggered = true
			st.neverAfterTriggerIdx = idx
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("never_after(%s,%s): clear so far", rule.Trigger, rule.Forbidden)}

	case policy.RuleSequence:
		if rule.Strict {
			return e.stepCheckSequenceStrict(id, st, rule, call, idx)
		}
		return e.stepCheckSequenceLoose(id, st, rule, call, idx)

	case policy.RuleBlocklist:
		if strings.Contains(call.Tool, rule.Pattern) {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("tool %q at index %d matches blocklist pattern %q", call.Tool, idx, rule.Pattern)}
		}
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("tool %q does not match blocklist pattern %q", call.Tool, rule.Pattern)}
	}

	return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true, Explanation: "unknown rule type treated as pass"}
}

func (e *Engine) stepCheckSequenceStrict(id string, st *ruleState, rule policy.SequenceRule, call Call, idx int) RuleEvaluation {
	if st.sequenceStrictBroken || st.sequenceStrictIdx >= len(rule.Tools) {
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true, Explanation: "strict sequence already resolved"}
	}
	targets := e.resolver.Resolve(rule.Tools[st.sequenceStrictIdx])
	if contains(targets, call.Tool) {
		if !st.sequenceStrictStarted {
			st.sequenceStrictStarted = true
			st.sequenceStrictStartIdx = idx
		}
		st.sequenceStrictIdx++
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("strict sequence step %d/%d matched", st.sequenceStrictIdx, len(rule.Tools))}
	}
	if st.sequenceStrictStarted {
		st.sequenceStrictBroken = true
		expected := rule.Tools[st.sequenceStrictIdx]
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
			Explanation: fmt.Sprintf("strict sequence violated: expected %q at index %d but found %q", expected, idx, call.Tool)}
	}
	return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true, Explanation: "strict sequence not yet started"}
}

func (e *Engine) stepCheckSequenceLoose(id string, st *ruleState, rule policy.SequenceRule, call Call, idx int) RuleEvaluation {
	if st.sequenceIdx < len(rule.Tools) && contains(e.resolver.Resolve(rule.Tools[st.sequenceIdx]), call.Tool) {
		st.sequenceIdx++
		return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true,
			Explanation: fmt.Sprintf("sequence step %d/%d matched", st.sequenceIdx, len(rule.Tools))}
	}
	for future := st.sequenceIdx + 1; future < len(rule.Tools); future++ {
		if contains(e.resolver.Resolve(rule.Tools[future]), call.Tool) {
			return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
				Explanation: fmt.Sprintf("sequence order violated: %q at index %d appeared before %q", rule.Tools[future], idx, rule.Tools[st.sequenceIdx])}
		}
	}
	return RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: true, Explanation: "sequence unaffected by this call"}
}

// endCheck runs a rule's end-of-trace post-condition, returning a violation
// RuleEvaluation or nil when satisfied.
func (e *Engine) endCheck(ri int, st *ruleState, rule policy.SequenceRule, totalCalls int) *RuleEvaluation {
	id := ruleID(rule, ri)
	switch rule.Type {
	case policy.RuleRequire:
		if st.requireSeen {
			return nil
		}
		return &RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
			Explanation: fmt.Sprintf("required tool %q was never observed", rule.Tool)}

	case policy.RuleAfter:
		if st.afterPendingTriggerIdx == nil {
			return nil
		}
		return &RuleEvaluation{RuleID: id, RuleType: rule.Type, Passed: false,
			Explanation: fmt.Sprintf("%q required within %d calls after %q (triggered at index %d) but trace ended first", rule.Then, rule.Within, rule.Trigger, *st.afterPendingTriggerIdx)}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
