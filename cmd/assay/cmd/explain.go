package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	celeval "github.com/assay-dev/assay/internal/adapter/outbound/cel"
	"github.com/assay-dev/assay/internal/domain/explain"
	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/sequence"
	"github.com/assay-dev/assay/internal/domain/trace"
)

var (
	explainPolicyPath string
	explainFormat     string
)

var explainCmd = &cobra.Command{
	Use:   "explain <trace-file> <prompt>",
	Short: "Render a sequence-rule walk over one recorded response as a structured explanation",
	Long: `explain loads a policy and a trace file, looks up the response recorded
for <prompt>, walks its tool calls through the sequence rule engine, and
renders the per-step verdicts and any rule violations.`,
	Args: cobra.ExactArgs(2),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().StringVar(&explainPolicyPath, "policy", "", "path to the policy file (required)")
	explainCmd.Flags().StringVar(&explainFormat, "format", "terminal", "output format: json, terminal, markdown, or html")
	_ = explainCmd.MarkFlagRequired("policy")
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	tracePath, prompt := args[0], args[1]

	loaded, err := policy.LoadFile(explainPolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	source, err := trace.Load(tracePath)
	if err != nil {
		return fmt.Errorf("load trace: %w", err)
	}
	resp, err := source.Complete(prompt)
	if err != nil {
		return fmt.Errorf("look up prompt in trace: %w", err)
	}

	var celEvaluator sequence.ConditionEvaluator
	for _, rule := range loaded.Policy.Sequences {
		if rule.Condition != "" {
			celEvaluator, err = celeval.NewEvaluator()
			if err != nil {
				return fmt.Errorf("build CEL evaluator: %w", err)
			}
			break
		}
	}

	engine, err := sequence.NewEngine(loaded.Policy, loaded.Resolver, celEvaluator)
	if err != nil {
		return fmt.Errorf("build sequence engine: %w", err)
	}

	calls, err := toolCallsFromResponse(resp)
	if err != nil {
		return fmt.Errorf("read tool calls from response: %w", err)
	}
	result, err := engine.Walk(calls)
	if err != nil {
		return fmt.Errorf("walk trace: %w", err)
	}

	exp := explain.Explain(loaded.Policy.Name, loaded.Policy.Version, result)

	switch explainFormat {
	case "json":
		encoded, err := explain.RenderJSON(exp)
		if err != nil {
			return fmt.Errorf("render explanation json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	case "markdown":
		fmt.Fprint(cmd.OutOrStdout(), explain.RenderMarkdown(exp))
	case "html":
		fmt.Fprint(cmd.OutOrStdout(), explain.RenderHTML(exp))
	default:
		fmt.Fprint(cmd.OutOrStdout(), explain.RenderTerminal(exp))
	}
	return nil
}

// toolCallsFromResponse extracts resp's recorded tool calls, in order, as
// sequence.Call — the same meta["tool_calls"] shape the coverage and metric
// evaluators read.
func toolCallsFromResponse(resp trace.Response) ([]sequence.Call, error) {
	raw, ok := resp.Meta["tool_calls"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]trace.ToolCallRecord)
	if !ok {
		return nil, fmt.Errorf("meta.tool_calls has unexpected shape %T", raw)
	}
	calls := make([]sequence.Call, len(list))
	for i, c := range list {
		calls[i] = sequence.Call{Tool: c.ToolName, Args: c.Args}
	}
	return calls, nil
}
