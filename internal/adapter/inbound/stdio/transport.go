// Package stdio implements the MCP stdio server surface: a JSON-RPC 2.0
// server, built on modelcontextprotocol/go-sdk's own Server/AddTool/Run
// dispatch, exposing the five assay_* tools over stdin/stdout.
package stdio

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	celadapter "github.com/assay-dev/assay/internal/adapter/outbound/cel"
	"github.com/assay-dev/assay/internal/domain/argvalidator"
	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/explain"
	"github.com/assay-dev/assay/internal/domain/mcplimits"
	"github.com/assay-dev/assay/internal/domain/policy"
	"github.com/assay-dev/assay/internal/domain/sequence"
	"github.com/assay-dev/assay/internal/domain/validation"
)

// serverName identifies this process to an MCP client during initialize.
const serverName = "assay"

// CoverageChecker is the narrow interface the assay_check_coverage tool
// calls into. Satisfied by PolicyCoverageChecker, a thin view onto the
// coverage analyzer (C10); kept narrow so this package never imports storage directly,
// mirroring the health checker's StorePinger pattern.
type CoverageChecker interface {
	CheckCoverage(baselinePath string, observedTools []string) (*CoverageReport, error)
}

// CoverageReport is the result of comparing an observed tool-call set
// against the tools declared in a policy file.
type CoverageReport struct {
	CoveredTools  []string `json:"covered_tools"`
	MissingTools  []string `json:"missing_tools"`
	HighRiskGaps  []string `json:"high_risk_gaps,omitempty"`
	CoverageRatio float64  `json:"coverage_ratio"`
}

// toolCall is the wire shape of one tool-call entry inside a
// sequence/trace tool argument: a tool name with optional arguments.
type toolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// Server is the MCP stdio server adapter. It owns an mcpsdk.Server wired
// with the five assay_* tool handlers and the resource-limit/path-
// containment guard every handler applies before touching policy state.
type Server struct {
	mcp       *mcpsdk.Server
	guard     *mcplimits.Guard
	sanitizer *validation.Sanitizer
	validator *argvalidator.Validator
	coverage  CoverageChecker
}

// NewServer builds a Server with limits enforced by guard and, if
// coverage is non-nil, a working assay_check_coverage tool backed by it.
// policyRoot canonicalizes every policy_path argument; pass "" to disable
// containment (e.g. in tests that load from an ephemeral temp directory).
func NewServer(version string, limits mcplimits.Limits, policyRoot string, coverage CoverageChecker) (*Server, error) {
	guard, err := mcplimits.NewGuard(limits, policyRoot)
	if err != nil {
		return nil, fmt.Errorf("build resource-limit guard: %w", err)
	}
	validator, err := argvalidator.NewValidator(256)
	if err != nil {
		return nil, fmt.Errorf("build argument validator: %w", err)
	}

	s := &Server{
		mcp:       mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil),
		guard:     guard,
		sanitizer: validation.NewSanitizer(),
		validator: validator,
		coverage:  coverage,
	}
	s.registerTools()
	return s, nil
}

// Input schemas for the five tools. Kept as package-level json.RawMessage
// literals rather than generated, since the shapes are small and fixed.
var (
	checkArgsSchema = json.RawMessage(`{
		"type": "object",
		"required": ["policy_path", "tool_name"],
		"properties": {
			"policy_path": {"type": "string"},
			"tool_name": {"type": "string"},
			"args": {"type": "object"}
		}
	}`)

	toolCallSchema = `{
		"type": "object",
		"required": ["tool"],
		"properties": {
			"tool": {"type": "string"},
			"args": {"type": "object"}
		}
	}`

	checkSequenceSchema = json.RawMessage(`{
		"type": "object",
		"required": ["policy_path", "calls"],
		"properties": {
			"policy_path": {"type": "string"},
			"calls": {"type": "array", "items": ` + toolCallSchema + `}
		}
	}`)

	policyDecideSchema = json.RawMessage(`{
		"type": "object",
		"required": ["policy_path", "tool_name"],
		"properties": {
			"policy_path": {"type": "string"},
			"tool_name": {"type": "string"}
		}
	}`)

	checkCoverageSchema = json.RawMessage(`{
		"type": "object",
		"required": ["baseline_path", "observed_tools"],
		"properties": {
			"baseline_path": {"type": "string"},
			"observed_tools": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	explainTraceSchema = json.RawMessage(`{
		"type": "object",
		"required": ["policy_path", "calls"],
		"properties": {
			"policy_path": {"type": "string"},
			"calls": {"type": "array", "items": ` + toolCallSchema + `},
			"format": {"type": "string", "enum": ["terminal", "markdown", "html", "json"]}
		}
	}`)
)

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcpsdk.Tool{
		Name:        "assay_check_args",
		Description: "Validate a tool call's arguments against the JSON-Schema a policy declares for that tool.",
		InputSchema: checkArgsSchema,
	}, s.handleCheckArgs)

	s.mcp.AddTool(&mcpsdk.Tool{
		Name:        "assay_check_sequence",
		Description: "Walk a stream of tool calls against a policy's sequence rules and static allow/deny lists.",
		InputSchema: checkSequenceSchema,
	}, s.handleCheckSequence)

	s.mcp.AddTool(&mcpsdk.Tool{
		Name:        "assay_policy_decide",
		Description: "Apply a policy's static tool allow/deny pre-check to a single tool name, with no call history.",
		InputSchema: policyDecideSchema,
	}, s.handlePolicyDecide)

	s.mcp.AddTool(&mcpsdk.Tool{
		Name:        "assay_check_coverage",
		Description: "Compare an observed set of tool calls against a policy file's declared tools and report coverage gaps.",
		InputSchema: checkCoverageSchema,
	}, s.handleCheckCoverage)

	s.mcp.AddTool(&mcpsdk.Tool{
		Name:        "assay_explain_trace",
		Description: "Render a human-readable explanation of a sequence-rule walk over a trace (terminal, markdown, html, or json).",
		InputSchema: explainTraceSchema,
	}, s.handleExplainTrace)
}

// Run blocks serving tool calls over t until ctx is cancelled or the
// transport returns an error.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	return s.mcp.Run(ctx, t)
}

// --- shared handler plumbing ---

// textResult wraps text as a successful CallToolResult.
func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

// errorResult renders a Diagnostic (or any error) as a tool-level failure:
// IsError true with the diagnostic's JSON (or message) as the text content.
// Tool-level failures never become a Go error return, matching
// CallToolResult's own content/isError shape rather than a JSON-RPC
// protocol-level error.
func errorResult(err error) *mcpsdk.CallToolResult {
	if diag, ok := err.(*diagnostic.Diagnostic); ok {
		body, marshalErr := json.Marshal(diag)
		if marshalErr == nil {
			return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(body)}}, IsError: true}
		}
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}}, IsError: true}
}

// decodeArguments round-trips req's arguments through JSON into out, which
// must be a pointer to the handler's typed input struct. Mirrors the
// client-side CallToolParams{Name, Arguments} shape used throughout the
// pack (e.g. pkg/mcp.Client.CallTool), server-side.
func decodeArguments(req *mcpsdk.CallToolRequest, out any) error {
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return fmt.Errorf("marshal tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return diagnostic.New(diagnostic.ECfgParse, "stdio.Server", fmt.Sprintf("decode tool arguments: %v", err))
	}
	return nil
}

// loadPolicy resolves policyPath inside the guard's canonicalized root and
// loads+validates the policy file there.
func (s *Server) loadPolicy(policyPath string) (*policy.Loaded, error) {
	resolved, err := s.guard.ResolvePolicyPath(policyPath)
	if err != nil {
		return nil, err
	}
	return policy.LoadFile(resolved)
}

// buildEngine constructs a sequence.Engine for loaded, wiring a fresh CEL
// evaluator so any SequenceRule.Condition guard can compile. Most callers
// only need the engine's static allow/deny pre-check and never trigger a
// condition compile, but NewEngine requires an evaluator whenever any rule
// in the policy declares a Condition, whether or not that rule is reached.
func buildEngine(loaded *policy.Loaded) (*sequence.Engine, error) {
	evaluator, err := celadapter.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("build CEL evaluator: %w", err)
	}
	return sequence.NewEngine(loaded.Policy, loaded.Resolver, evaluator)
}

func toCalls(in []toolCall) []sequence.Call {
	calls := make([]sequence.Call, len(in))
	for i, c := range in {
		calls[i] = sequence.Call{Tool: c.Tool, Args: c.Args}
	}
	return calls
}

// --- assay_check_args ---

type checkArgsInput struct {
	PolicyPath string         `json:"policy_path"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args"`
}

func (s *Server) handleCheckArgs(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if err := s.guard.CheckToolCallCount(); err != nil {
		return errorResult(err), nil
	}

	var in checkArgsInput
	if err := decodeArguments(req, &in); err != nil {
		return errorResult(err), nil
	}

	sanitizedArgs, err := s.sanitizer.SanitizeToolCall(in.ToolName, in.Args)
	if err != nil {
		return errorResult(err), nil
	}

	loaded, err := s.loadPolicy(in.PolicyPath)
	if err != nil {
		return errorResult(err), nil
	}

	verdict := s.validator.Validate(in.PolicyPath, loaded.Policy, in.ToolName, sanitizedArgs)
	body, err := json.Marshal(verdict)
	if err != nil {
		return nil, fmt.Errorf("marshal args verdict: %w", err)
	}
	return textResult(string(body)), nil
}

// --- assay_check_sequence ---

type checkSequenceInput struct {
	PolicyPath string     `json:"policy_path"`
	Calls      []toolCall `json:"calls"`
}

func (s *Server) handleCheckSequence(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if err := s.guard.CheckToolCallCount(); err != nil {
		return errorResult(err), nil
	}

	var in checkSequenceInput
	if err := decodeArguments(req, &in); err != nil {
		return errorResult(err), nil
	}

	loaded, err := s.loadPolicy(in.PolicyPath)
	if err != nil {
		return errorResult(err), nil
	}

	eng, err := buildEngine(loaded)
	if err != nil {
		return errorResult(diagnostic.New(diagnostic.EPolicyInvalid, "stdio.Server", err.Error())), nil
	}

	result, err := eng.Walk(toCalls(in.Calls))
	if err != nil {
		return errorResult(diagnostic.New(diagnostic.ESequenceViolation, "stdio.Server", err.Error())), nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal sequence result: %w", err)
	}
	return textResult(string(body)), nil
}

// --- assay_policy_decide ---

type policyDecideInput struct {
	PolicyPath string `json:"policy_path"`
	ToolName   string `json:"tool_name"`
}

type policyDecideOutput struct {
	Verdict sequence.Verdict `json:"verdict"`
	Reason  string           `json:"reason,omitempty"`
}

func (s *Server) handlePolicyDecide(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if err := s.guard.CheckToolCallCount(); err != nil {
		return errorResult(err), nil
	}

	var in policyDecideInput
	if err := decodeArguments(req, &in); err != nil {
		return errorResult(err), nil
	}
	if err := s.sanitizer.ValidateToolName(in.ToolName); err != nil {
		return errorResult(err), nil
	}

	loaded, err := s.loadPolicy(in.PolicyPath)
	if err != nil {
		return errorResult(err), nil
	}

	eng, err := buildEngine(loaded)
	if err != nil {
		return errorResult(diagnostic.New(diagnostic.EPolicyInvalid, "stdio.Server", err.Error())), nil
	}

	verdict, reason := eng.Decide(in.ToolName)
	body, err := json.Marshal(policyDecideOutput{Verdict: verdict, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("marshal decide output: %w", err)
	}
	return textResult(string(body)), nil
}

// --- assay_check_coverage ---

type checkCoverageInput struct {
	BaselinePath  string   `json:"baseline_path"`
	ObservedTools []string `json:"observed_tools"`
}

func (s *Server) handleCheckCoverage(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if err := s.guard.CheckToolCallCount(); err != nil {
		return errorResult(err), nil
	}

	if s.coverage == nil {
		return errorResult(diagnostic.New(diagnostic.ETraceMiss, "stdio.Server",
			"this server was started without a baseline/coverage analyzer configured")), nil
	}

	var in checkCoverageInput
	if err := decodeArguments(req, &in); err != nil {
		return errorResult(err), nil
	}

	resolved, err := s.guard.ResolvePolicyPath(in.BaselinePath)
	if err != nil {
		return errorResult(err), nil
	}

	report, err := s.coverage.CheckCoverage(resolved, in.ObservedTools)
	if err != nil {
		return errorResult(err), nil
	}

	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal coverage report: %w", err)
	}
	return textResult(string(body)), nil
}

// --- assay_explain_trace ---

type explainTraceInput struct {
	PolicyPath string     `json:"policy_path"`
	Calls      []toolCall `json:"calls"`
	Format     string     `json:"format"`
}

func (s *Server) handleExplainTrace(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	if err := s.guard.CheckToolCallCount(); err != nil {
		return errorResult(err), nil
	}

	var in explainTraceInput
	if err := decodeArguments(req, &in); err != nil {
		return errorResult(err), nil
	}
	if in.Format == "" {
		in.Format = "terminal"
	}

	loaded, err := s.loadPolicy(in.PolicyPath)
	if err != nil {
		return errorResult(err), nil
	}

	eng, err := buildEngine(loaded)
	if err != nil {
		return errorResult(diagnostic.New(diagnostic.EPolicyInvalid, "stdio.Server", err.Error())), nil
	}

	result, err := eng.Walk(toCalls(in.Calls))
	if err != nil {
		return errorResult(diagnostic.New(diagnostic.ESequenceViolation, "stdio.Server", err.Error())), nil
	}

	exp := explain.Explain(loaded.Policy.Name, loaded.Policy.Version, result)

	switch in.Format {
	case "terminal":
		return textResult(explain.RenderTerminal(exp)), nil
	case "markdown":
		return textResult(explain.RenderMarkdown(exp)), nil
	case "html":
		return textResult(explain.RenderHTML(exp)), nil
	case "json":
		body, err := explain.RenderJSON(exp)
		if err != nil {
			return nil, fmt.Errorf("render json explanation: %w", err)
		}
		return textResult(string(body)), nil
	default:
		return errorResult(diagnostic.New(diagnostic.ECfgParse, "stdio.Server",
			fmt.Sprintf("unknown format %q: want one of terminal, markdown, html, json", in.Format))), nil
	}
}
