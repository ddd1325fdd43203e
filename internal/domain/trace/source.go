package trace

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
)

// maxLineBytes bounds a single JSONL line, matching the MCP message-size
// order of magnitude; a trace line this large is almost certainly corrupt.
const maxLineBytes = 10 << 20

// Source is a loaded, immutable trace file: a prompt-keyed map of
// responses plus the deterministic fingerprint over its contents.
type Source struct {
	responses   map[string]Response
	fingerprint string
}

// episodeState is the mutable buffer for one in-flight V2 episode between
// its EpisodeStart and EpisodeEnd (or end-of-file flush).
type episodeState struct {
	input        *string
	output       *string
	model        *string
	meta         map[string]any
	inputIsModel bool
	toolCalls    []ToolCallRecord
}

// rawEvent is the minimal shape every JSONL line decodes into first, to
// dispatch on its `type` field before parsing the rest.
type rawEvent struct {
	Type string `json:"type"`

	// flat entry fields
	Prompt    string         `json:"prompt"`
	Response  string         `json:"response"`
	Text      string         `json:"text"`
	Model     string         `json:"model"`
	Meta      map[string]any `json:"meta"`
	RequestID string         `json:"request_id"`

	// episode_start
	EpisodeID string         `json:"episode_id"`
	Input     map[string]any `json:"input"`

	// step
	StepID  string  `json:"step_id"`
	Kind    string  `json:"kind"`
	Content *string `json:"content"`

	// tool_call
	CallIndex *int           `json:"call_index"`
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args"`
	Result    any            `json:"result"`
	Error     *string        `json:"error"`
	Timestamp int64          `json:"timestamp"`

	// episode_end
	FinalOutput *string `json:"final_output"`
}

// Load parses the JSONL trace file at path into a Source. Every line must
// be either empty or a valid JSON object; the first malformed line aborts
// the load with its 1-based offset attached as Diagnostic context.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diagnostic.New(diagnostic.EPathNotFound, "trace.Load", fmt.Sprintf("open trace file %q: %v", path, err)).
			WithContext(map[string]any{"path": path})
	}
	defer f.Close()

	responses := map[string]Response{}
	requestIDs := map[string]bool{}
	episodes := map[string]*episodeState{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev rawEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, diagnostic.New(diagnostic.ETraceInvalid, "trace.Load", fmt.Sprintf("line %d: parse error: %v", lineNo, err)).
				WithContext(map[string]any{"path": path, "line": lineNo})
		}

		switch ev.Type {
		case "episode_start":
			state := &episodeState{meta: ev.Meta, toolCalls: []ToolCallRecord{}}
			if p, ok := ev.Input["prompt"].(string); ok {
				state.input = &p
				state.inputIsModel = true
			}
			episodes[ev.EpisodeID] = state

		case "tool_call":
			state, ok := episodes[ev.EpisodeID]
			if !ok {
				continue
			}
			callIdx := 0
			if ev.CallIndex != nil {
				callIdx = *ev.CallIndex
			}
			errText := ""
			if ev.Error != nil {
				errText = *ev.Error
			}
			state.toolCalls = append(state.toolCalls, ToolCallRecord{
				ID:          fmt.Sprintf("%s-%d", ev.StepID, callIdx),
				ToolName:    ev.ToolName,
				Args:        ev.Args,
				Result:      ev.Result,
				Error:       errText,
				Index:       len(state.toolCalls),
				TimestampMS: ev.Timestamp,
			})

		case "step":
			state, ok := episodes[ev.EpisodeID]
			if !ok {
				continue
			}
			applyStep(state, ev)

		case "episode_end":
			state, ok := episodes[ev.EpisodeID]
			if !ok {
				continue
			}
			delete(episodes, ev.EpisodeID)
			if ev.FinalOutput != nil {
				state.output = ev.FinalOutput
			}
			if err := commitEpisode(responses, state, path, lineNo, false); err != nil {
				return nil, err
			}

		case "":
			if err := commitFlat(responses, requestIDs, ev, path, lineNo); err != nil {
				return nil, err
			}

		case "assay.trace":
			if err := commitFlat(responses, requestIDs, ev, path, lineNo); err != nil {
				return nil, err
			}

		default:
			// Unrecognized event types are forward-compatible no-ops.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, diagnostic.New(diagnostic.ETraceInvalid, "trace.Load", fmt.Sprintf("read trace file %q: %v", path, err)).
			WithContext(map[string]any{"path": path})
	}

	for _, state := range episodes {
		// Unterminated episodes are flushed at EOF; a duplicate prompt here
		// is dropped rather than rejected, since no explicit EpisodeEnd ever
		// confirmed the episode's completion.
		_ = commitEpisode(responses, state, path, lineNo, true)
	}

	return &Source{responses: responses, fingerprint: fingerprintOf(responses)}, nil
}

// applyStep folds one V2 Step event into its episode's buffered prompt
// (first model-sourced wins) and output (last-wins), per the episode
// assembly rules.
func applyStep(state *episodeState, ev rawEvent) {
	isModel := ev.Kind == "model"
	canExtractPrompt := state.input == nil
	if isModel {
		canExtractPrompt = !state.inputIsModel
	}

	if canExtractPrompt {
		var found *string
		if ev.Content != nil {
			if p, ok := contentField(*ev.Content, "prompt"); ok {
				found = &p
			}
		}
		if found == nil {
			if p, ok := ev.Meta["gen_ai.prompt"].(string); ok {
				found = &p
			}
		}
		if found != nil {
			state.input = found
			if isModel {
				state.inputIsModel = true
			}
		}
	}

	if ev.Content != nil {
		if completion, ok := contentField(*ev.Content, "completion"); ok {
			state.output = &completion
			if model, ok := contentField(*ev.Content, "model"); ok {
				state.model = &model
			}
		} else {
			state.output = ev.Content
		}
	}
	if completion, ok := ev.Meta["gen_ai.completion"].(string); ok {
		state.output = &completion
	}
	if model, ok := ev.Meta["gen_ai.request.model"].(string); ok {
		state.model = &model
	} else if model, ok := ev.Meta["gen_ai.response.model"].(string); ok {
		state.model = &model
	}
}

// contentField parses raw (a step's JSON-encoded content string) and
// extracts field as a string, if present.
func contentField(raw, field string) (string, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", false
	}
	v, ok := parsed[field].(string)
	return v, ok
}

// commitEpisode finalizes a buffered episode into responses, injecting its
// tool calls into meta.tool_calls. eofFlush relaxes the duplicate-prompt
// check from an error to a silent skip, since an unterminated episode at
// EOF was never confirmed complete.
func commitEpisode(responses map[string]Response, state *episodeState, path string, lineNo int, eofFlush bool) error {
	if state.input == nil || state.output == nil {
		return nil
	}
	prompt := *state.input
	if _, exists := responses[prompt]; exists {
		if eofFlush {
			return nil
		}
		return diagnostic.New(diagnostic.ETraceInvalid, "trace.Load",
			fmt.Sprintf("line %d: duplicate prompt across episodes: %q", lineNo, prompt)).
			WithContext(map[string]any{"path": path, "line": lineNo, "prompt": prompt})
	}

	meta := state.meta
	if meta == nil {
		meta = map[string]any{}
	}
	if len(state.toolCalls) > 0 {
		meta["tool_calls"] = state.toolCalls
	}

	model := "trace"
	if state.model != nil {
		model = *state.model
	}

	responses[prompt] = Response{
		Text:     *state.output,
		Meta:     meta,
		Model:    model,
		Provider: "trace",
	}
	return nil
}

// commitFlat finalizes a legacy flat entry (type "assay.trace" or absent)
// into responses, applying the request_id and prompt uniqueness checks.
func commitFlat(responses map[string]Response, requestIDs map[string]bool, ev rawEvent, path string, lineNo int) error {
	response := ev.Response
	if response == "" {
		response = ev.Text
	}
	if ev.Prompt == "" || response == "" {
		return nil
	}

	if ev.RequestID != "" {
		if requestIDs[ev.RequestID] {
			return diagnostic.New(diagnostic.ETraceInvalid, "trace.Load",
				fmt.Sprintf("line %d: duplicate request_id %q", lineNo, ev.RequestID)).
				WithContext(map[string]any{"path": path, "line": lineNo, "request_id": ev.RequestID})
		}
		requestIDs[ev.RequestID] = true
	}

	if _, exists := responses[ev.Prompt]; exists {
		return diagnostic.New(diagnostic.ETraceInvalid, "trace.Load",
			fmt.Sprintf("line %d: duplicate prompt found in trace file: %q", lineNo, ev.Prompt)).
			WithContext(map[string]any{"path": path, "line": lineNo, "prompt": ev.Prompt})
	}

	model := ev.Model
	if model == "" {
		model = "trace"
	}
	responses[ev.Prompt] = Response{
		Text:     response,
		Meta:     ev.Meta,
		Model:    model,
		Provider: "trace",
	}
	return nil
}

// fingerprintOf computes the deterministic SHA-256 fingerprint over
// responses: sorted prompt keys, each concatenated with its response text
// and model.
func fingerprintOf(responses map[string]Response) string {
	keys := make([]string, 0, len(responses))
	for k := range responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		r := responses[k]
		h.Write([]byte(r.Text))
		h.Write([]byte(r.Model))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Complete looks up prompt's recorded response. On a miss, the returned
// Diagnostic carries the closest known prompt (by Jaro-Winkler similarity)
// as a fix-step hint.
func (s *Source) Complete(prompt string) (Response, error) {
	if r, ok := s.responses[prompt]; ok {
		return r, nil
	}

	keys := make([]string, 0, len(s.responses))
	for k := range s.responses {
		keys = append(keys, k)
	}

	diag := diagnostic.New(diagnostic.ETraceMiss, "trace.Source", "prompt not found in loaded trace").
		WithContext(map[string]any{"prompt": prompt})

	if match := findClosest(prompt, keys); match != nil {
		diag.Context["closest_match"] = match.Prompt
		diag.Context["similarity"] = match.Similarity
		diag = diag.WithFixSteps(
			fmt.Sprintf("Did you mean %q? (similarity: %.2f)", match.Prompt, match.Similarity),
			"Update your input prompt to match the trace exactly",
			"Regenerate the trace file: assay trace ingest ...",
		)
	} else {
		diag = diag.WithFixSteps(
			"No similar prompts found in trace file",
			"Regenerate the trace file: assay trace ingest ...",
		)
	}
	return Response{}, diag
}

// Fingerprint returns the deterministic fingerprint over every response
// this Source holds.
func (s *Source) Fingerprint() string {
	return s.fingerprint
}

// Len reports how many prompts this Source holds.
func (s *Source) Len() int {
	return len(s.responses)
}

// Responses returns every recorded prompt/response pair, keyed by prompt.
// Used by the coverage analyzer and trace verify/import commands, which
// need to enumerate an entire trace file's tool-call footprint rather than
// look up one prompt at a time.
func (s *Source) Responses() map[string]Response {
	out := make(map[string]Response, len(s.responses))
	for k, v := range s.responses {
		out[k] = v
	}
	return out
}
