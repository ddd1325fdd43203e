// Package trace implements the Trace Replay Source (C5): it parses a JSONL
// trace file — legacy flat entries and V2 streaming episode events alike —
// into a prompt-keyed map of recorded responses, with a deterministic
// fingerprint and closest-match lookup for trace misses.
package trace

// Response is a recorded model response, keyed by the prompt that produced
// it. Meta carries provider-specific payload (embeddings, judge scores,
// tool_calls) the metric evaluators (C8) read back out.
type Response struct {
	Text     string         `json:"text"`
	Meta     map[string]any `json:"meta,omitempty"`
	Model    string         `json:"model"`
	Provider string         `json:"provider"`
}

// ToolCallRecord is one tool invocation captured inside a V2 episode,
// injected into its committed Response's Meta["tool_calls"].
type ToolCallRecord struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"tool_name"`
	Args        map[string]any `json:"args,omitempty"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Index       int            `json:"index"`
	TimestampMS int64          `json:"ts_ms,omitempty"`
}
