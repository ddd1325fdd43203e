// Package strictguard implements the Strict-Replay Guard (C11): a wrapping
// adapter that refuses any live network call while replay-strict is
// active, plus the pre-evaluation check that a response carries whatever
// precomputed meta its Expected variant requires before a metric ever
// touches it.
package strictguard

import (
	"context"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
	"github.com/assay-dev/assay/internal/domain/trace"
)

// Completer is the narrow LLM-call surface a live provider exposes. It
// matches runner.Provider's Complete method structurally so a
// NetworkGuard can stand in for either a live HTTP client or a judge/
// embedder client without this package importing either of those.
type Completer interface {
	Complete(ctx context.Context, prompt string, testContext map[string]any) (trace.Response, error)
	ProviderFingerprint() string
}

// NetworkGuard wraps a live Completer and refuses every call it receives.
// It exists to be substituted in place of the real provider wherever
// replay-strict mode is active — the guard is a wrapping adapter, not a
// field check scattered through the runner, per spec.md §9's design note
// on provider polymorphism.
type NetworkGuard struct {
	inner Completer
}

// NewNetworkGuard builds a NetworkGuard around inner. inner is stored but
// never called: neither Complete nor ProviderFingerprint reaches it.
func NewNetworkGuard(inner Completer) *NetworkGuard {
	return &NetworkGuard{inner: inner}
}

// Complete always fails with E_REPLAY_STRICT_NETWORK_FORBIDDEN: no network
// call is ever issued while replay-strict is set.
func (g *NetworkGuard) Complete(_ context.Context, prompt string, _ map[string]any) (trace.Response, error) {
	return trace.Response{}, diagnostic.New(diagnostic.EReplayStrictNetworkForbidden, "strictguard.NetworkGuard",
		"replay-strict is active: no live provider call is permitted").
		WithContext(map[string]any{"prompt": prompt}).
		WithFixSteps(
			"Record this prompt into the trace file and re-run in replay mode",
			"Disable replay_strict for this run if a live call is actually intended",
		)
}

// ProviderFingerprint reports a fixed sentinel so a VCR cache key computed
// under a NetworkGuard is never confused with one computed under the real
// provider it wraps.
func (g *NetworkGuard) ProviderFingerprint() string {
	return "replay-strict-guard"
}

// JudgeCompleter is the narrow surface judge.Completer exposes (a single-
// argument Complete, no context or fingerprint) — judge calls are replayed
// or blocked independently of the main provider.
type JudgeCompleter interface {
	Complete(prompt string) (trace.Response, error)
}

// JudgeNetworkGuard wraps a live judge.Completer and refuses every sample
// request it receives, the judge-call equivalent of NetworkGuard.
type JudgeNetworkGuard struct{}

// NewJudgeNetworkGuard builds a JudgeNetworkGuard.
func NewJudgeNetworkGuard() JudgeNetworkGuard {
	return JudgeNetworkGuard{}
}

// Complete always fails with E_REPLAY_STRICT_NETWORK_FORBIDDEN.
func (JudgeNetworkGuard) Complete(prompt string) (trace.Response, error) {
	return trace.Response{}, diagnostic.New(diagnostic.EReplayStrictNetworkForbidden, "strictguard.JudgeNetworkGuard",
		"replay-strict is active: no live judge sample call is permitted").
		WithContext(map[string]any{"prompt": prompt}).
		WithFixSteps(
			"Run precompute-judge to embed judge results into the trace file",
			"Disable replay_strict for this run if a live judge call is actually intended",
		)
}
