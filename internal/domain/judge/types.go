// Package judge implements the Judge Service (C7): LLM-as-judge evaluation
// of a rubric (faithfulness, relevance, or a custom criteria set) against
// (prompt, context, response), with trace-first resolution, a persistent
// cache keyed by the full judge call shape, and majority-vote aggregation
// over independent live samples.
package judge

import "github.com/assay-dev/assay/internal/domain/trace"

// Input is the (prompt, context) pair a rubric is judged against.
type Input struct {
	Prompt  string
	Context string
}

// Result is what Evaluate returns and what gets written into
// response.meta.assay.judge.{rubric_id}.
type Result struct {
	Passed        bool    `json:"passed"`
	Score         float64 `json:"score"`
	Rationale     string  `json:"rationale"`
	Samples       []bool  `json:"samples"`
	Source        string  `json:"source"` // trace | cache | live
	RubricVersion string  `json:"rubric_version"`
}

// Completer is the narrow LLM-call surface the judge needs. trace.Source
// satisfies it directly, letting a loaded trace file stand in for a live
// provider in replay mode.
type Completer interface {
	Complete(prompt string) (trace.Response, error)
}

// Cache is the narrow persistence interface for judge results, keyed by
// the full call shape hash computed in Service.cacheKey.
type Cache interface {
	Get(key string) (Result, bool, error)
	Put(key string, result Result) error
}

// Config is the judge's runtime configuration: which provider/model to
// call, how many independent samples to take per evaluation, and whether
// judging is enabled at all.
type Config struct {
	Enabled       bool
	Provider      string
	Model         string
	Samples       int
	Temperature   float64
	MaxTokens     int
	RubricVersion string
	Refresh       bool
}
