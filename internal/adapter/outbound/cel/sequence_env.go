package cel

import (
	"path/filepath"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/assay-dev/assay/internal/domain/policy"
)

// NewSequencePolicyEnvironment creates the CEL environment used to evaluate
// a SequenceRule's optional Condition guard. The variable surface is
// intentionally narrow: a guard only ever needs to know about the current
// step and the call counts accumulated so far.
//
//   - tool: the current step's resolved tool name
//   - step_index: zero-based position of the current step
//   - args: the current step's tool-call arguments
//   - glob(pattern, name): shell-style glob match, for tool-name guards
//   - call_count(counts, tool): lookup helper over the call-count map
func NewSequencePolicyEnvironment() (*celgo.Env, error) {
	return celgo.NewEnv(
		ext.Strings(),

		celgo.Variable("tool", celgo.StringType),
		celgo.Variable("step_index", celgo.IntType),
		celgo.Variable("args", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("call_counts", celgo.MapType(celgo.StringType, celgo.IntType)),

		celgo.Function("glob",
			celgo.Overload("glob_string_string",
				[]*celgo.Type{celgo.StringType, celgo.StringType},
				celgo.BoolType,
				celgo.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		celgo.Function("call_count",
			celgo.Overload("call_count_map_string",
				[]*celgo.Type{celgo.MapType(celgo.StringType, celgo.IntType), celgo.StringType},
				celgo.IntType,
				celgo.BinaryBinding(func(countsVal, toolVal ref.Val) ref.Val {
					tool := toolVal.Value().(string)
					counts, ok := countsVal.Value().(map[string]int)
					if !ok {
						return types.Int(0)
					}
					return types.Int(int64(counts[tool]))
				}),
			),
		),
	)
}

// BuildSequenceActivation creates a CEL activation map from a RuleContext.
func BuildSequenceActivation(rc policy.RuleContext) map[string]any {
	args := rc.Args
	if args == nil {
		args = map[string]any{}
	}
	counts := rc.CallCounts
	if counts == nil {
		counts = map[string]int{}
	}
	return map[string]any{
		"tool":        rc.Tool,
		"step_index":  int64(rc.StepIndex),
		"args":        args,
		"call_counts": counts,
	}
}
