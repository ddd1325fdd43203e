package policy

// RuleContext carries the information available to a SequenceRule's optional
// CEL Condition guard at a given step of the walk: the step being evaluated,
// and the call-count state accumulated so far. It is deliberately narrow —
// only what a guard expression can reasonably need to decide whether a
// rule's structural check should apply to this step.
type RuleContext struct {
	// StepIndex is the zero-based position of the current tool call in the trace.
	StepIndex int
	// Tool is the resolved concrete tool name of the current step.
	Tool string
	// Args are the current step's tool-call arguments, when known.
	Args map[string]any
	// CallCounts maps tool name to the number of times it has been observed
	// so far, including the current step.
	CallCounts map[string]int
}
