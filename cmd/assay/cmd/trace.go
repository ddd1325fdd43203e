package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/domain/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Manage recorded trace files",
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

// traceVerifyCmd

var traceVerifyCmd = &cobra.Command{
	Use:   "verify <trace-file>",
	Short: "Parse a trace file and report its fingerprint and entry count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := trace.Load(args[0])
		if err != nil {
			return fmt.Errorf("trace %q does not verify: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entries, fingerprint=%s\n", source.Len(), source.Fingerprint())
		return nil
	},
}

// traceIngestCmd converts a flat JSON array of recorded exchanges into the
// JSONL flat-entry shape trace.Load parses (type omitted, one object per
// line). This is the minimal, source-agnostic ingestion path: anything
// that can already be expressed as {prompt, response, model, meta,
// request_id} records (an export from a harness, a hand-written fixture)
// round-trips through here without needing a live provider in the loop.
type traceIngestRecord struct {
	Prompt    string         `json:"prompt"`
	Response  string         `json:"response"`
	Model     string         `json:"model"`
	Meta      map[string]any `json:"meta,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

var traceIngestOutput string

var traceIngestCmd = &cobra.Command{
	Use:   "ingest <records.json>",
	Short: "Convert a JSON array of recorded exchanges into a trace JSONL file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read records file %q: %w", args[0], err)
		}
		var records []traceIngestRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("parse records file %q as a JSON array: %w", args[0], err)
		}
		return writeFlatTrace(traceIngestOutput, records)
	},
}

// traceImportMCPCmd converts a Model Context Protocol session transcript
// (a JSON array of MCP request/response envelopes) into the same trace
// JSONL shape. Only the subset of the MCP wire format needed to recover a
// prompt/response/tool-call triple is read; an MCP client able to *make*
// live calls is out of scope here, this only replays an already-captured
// transcript.
type mcpEnvelope struct {
	Method string `json:"method"`
	Params struct {
		Prompt    string         `json:"prompt"`
		Completion string        `json:"completion"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
	Result any `json:"result"`
}

var traceImportMCPOutput string

var traceImportMCPCmd = &cobra.Command{
	Use:   "import-mcp <transcript.json>",
	Short: "Convert an MCP session transcript into a trace JSONL file",
	Long: `import-mcp reads a JSON array of MCP request/response envelopes and folds
consecutive sampling + tool-call envelopes sharing a prompt into one trace
entry. It understands the envelope shape well enough to recover
prompt/completion/tool-call triples; it does not speak MCP over a live
transport.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read transcript %q: %w", args[0], err)
		}
		var envelopes []mcpEnvelope
		if err := json.Unmarshal(data, &envelopes); err != nil {
			return fmt.Errorf("parse transcript %q as a JSON array of MCP envelopes: %w", args[0], err)
		}

		records := map[string]*traceIngestRecord{}
		order := []string{}
		var currentPrompt string
		callsByPrompt := map[string][]trace.ToolCallRecord{}

		for i, env := range envelopes {
			switch env.Method {
			case "sampling/createMessage", "sampling/complete":
				currentPrompt = env.Params.Prompt
				if currentPrompt == "" {
					continue
				}
				if _, ok := records[currentPrompt]; !ok {
					records[currentPrompt] = &traceIngestRecord{Prompt: currentPrompt, Model: "mcp"}
					order = append(order, currentPrompt)
				}
				if env.Params.Completion != "" {
					records[currentPrompt].Response = env.Params.Completion
				}
			case "tools/call":
				if currentPrompt == "" {
					continue
				}
				calls := append(callsByPrompt[currentPrompt], trace.ToolCallRecord{
					ID:       fmt.Sprintf("mcp-%d", i),
					ToolName: env.Params.Name,
					Args:     env.Params.Arguments,
					Result:   env.Result,
					Index:    len(callsByPrompt[currentPrompt]),
				})
				callsByPrompt[currentPrompt] = calls
				if rec, ok := records[currentPrompt]; ok {
					rec.Meta = map[string]any{"tool_calls": calls}
				}
			}
		}

		out := make([]traceIngestRecord, 0, len(order))
		for _, prompt := range order {
			rec := records[prompt]
			if rec.Response == "" {
				continue
			}
			out = append(out, *rec)
		}
		return writeFlatTrace(traceImportMCPOutput, out)
	},
}

// traceIngestOtelCmd and the precompute commands need a live collaborator
// (an OTel collector endpoint, an embeddings API, a judge LLM) that is out
// of scope for this build; they fail loudly and explain what's missing
// rather than silently no-op.
var traceIngestOtelCmd = &cobra.Command{
	Use:   "ingest-otel <otlp-endpoint>",
	Short: "Ingest spans from a live OpenTelemetry collector (not available in this build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("ingest-otel requires a live OTLP collector connection, which this build does not provide: export spans to a file and use `assay trace ingest` instead")
	},
}

var precomputeEmbeddingsCmd = &cobra.Command{
	Use:   "precompute-embeddings <trace-file>",
	Short: "Precompute embedding vectors for every trace response (not available in this build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("precompute-embeddings requires a live embeddings API client, which this build does not provide")
	},
}

var precomputeJudgeCmd = &cobra.Command{
	Use:   "precompute-judge <trace-file>",
	Short: "Precompute judge-metric samples for every trace response (not available in this build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("precompute-judge requires a live judge LLM client, which this build does not provide: run `assay run` with a judge cache already warmed instead")
	},
}

func init() {
	traceIngestCmd.Flags().StringVar(&traceIngestOutput, "output", "", "output JSONL path (required)")
	_ = traceIngestCmd.MarkFlagRequired("output")

	traceImportMCPCmd.Flags().StringVar(&traceImportMCPOutput, "output", "", "output JSONL path (required)")
	_ = traceImportMCPCmd.MarkFlagRequired("output")

	traceCmd.AddCommand(traceVerifyCmd, traceIngestCmd, traceImportMCPCmd, traceIngestOtelCmd, precomputeEmbeddingsCmd, precomputeJudgeCmd)
}

func writeFlatTrace(path string, records []traceIngestRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for i := range records {
		// A record arriving without its own request_id (a hand-written
		// fixture, an export format that never had the concept) still needs
		// one to correlate with run/judge spans downstream; synthesize it
		// rather than leaving the field blank.
		if records[i].RequestID == "" {
			records[i].RequestID = uuid.New().String()
		}
	}

	for _, rec := range records {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record for prompt %q: %w", rec.Prompt, err)
		}
		if _, err := w.Write(encoded); err != nil {
			return fmt.Errorf("write output file %q: %w", path, err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			return fmt.Errorf("write output file %q: %w", path, err)
		}
	}
	return nil
}
