package runner

import (
	"context"
	"fmt"

	"github.com/assay-dev/assay/internal/domain/trace"
)

// Provider is the capability interface spec.md §9 calls out: "a capability
// interface exposing complete(prompt, context?) → LlmResponse and
// provider_fingerprint()". A live HTTP client, a loaded trace, and the
// replay-strict guard wrapping either all satisfy it the same way, so the
// runner never branches on which kind of provider it holds.
type Provider interface {
	Complete(ctx context.Context, prompt string, testContext map[string]any) (trace.Response, error)
	ProviderFingerprint() string
}

// TraceProvider adapts a loaded trace.Source to the Provider interface so a
// replay run and a live run share one code path through the runner.
type TraceProvider struct {
	source *trace.Source
}

// NewTraceProvider wraps source as a Provider.
func NewTraceProvider(source *trace.Source) TraceProvider {
	return TraceProvider{source: source}
}

// Complete looks up prompt in the underlying trace. testContext is unused:
// a trace is keyed on prompt text alone, per spec.md §4.5.
func (p TraceProvider) Complete(_ context.Context, prompt string, _ map[string]any) (trace.Response, error) {
	return p.source.Complete(prompt)
}

// ProviderFingerprint returns the trace's own deterministic content
// fingerprint, satisfying the VCR cache key's provider_fingerprint field.
func (p TraceProvider) ProviderFingerprint() string {
	return fmt.Sprintf("trace:%s", p.source.Fingerprint())
}
