package cache

import "github.com/assay-dev/assay/internal/domain/fingerprint"

// Gate wires the VCR response cache and the incremental-skip cache behind
// the refresh_cache / incremental flags spec.md's engine evaluates before
// every test attempt.
type Gate struct {
	responses ResponseCache
	skips     SkipChecker
}

// NewGate builds a Gate over the given persistence interfaces.
func NewGate(responses ResponseCache, skips SkipChecker) *Gate {
	return &Gate{responses: responses, skips: skips}
}

// LookupResponse returns a cached live-provider response for
// (model, prompt, fingerprintHex, providerFingerprint), short-circuiting
// the call entirely. refreshCache forces a miss regardless of what is
// stored.
func (g *Gate) LookupResponse(model, prompt, fingerprintHex, providerFingerprint string, refreshCache bool) (Response, bool, error) {
	if refreshCache {
		return Response{}, false, nil
	}
	key := fingerprint.CacheKey(model, prompt, fingerprintHex, providerFingerprint)
	return g.responses.Get(key)
}

// StoreResponse persists resp under the VCR cache key for
// (model, prompt, fingerprintHex, providerFingerprint).
func (g *Gate) StoreResponse(model, prompt, fingerprintHex, providerFingerprint string, resp Response) error {
	key := fingerprint.CacheKey(model, prompt, fingerprintHex, providerFingerprint)
	return g.responses.Put(key, resp)
}

// CheckIncremental queries the most recent passing result recorded under
// testFingerprint. It only runs when incremental is set and refreshCache
// is not; otherwise it reports no hit without touching storage.
func (g *Gate) CheckIncremental(testFingerprint string, incremental, refreshCache bool) (*SkipRecord, bool, error) {
	if !incremental || refreshCache {
		return nil, false, nil
	}
	return g.skips.LastPassingByFingerprint(testFingerprint)
}

// CreateRun starts a new run row, returning its id for RecordResult calls.
func (g *Gate) CreateRun(suite string) (int64, error) {
	return g.skips.CreateRun(suite)
}

// FinalizeRun marks a run's terminal status.
func (g *Gate) FinalizeRun(runID int64, status string) error {
	return g.skips.FinalizeRun(runID, status)
}

// RecordResult records one test's outcome under runID, keyed by its
// composite fingerprint so a later run's CheckIncremental can find it.
func (g *Gate) RecordResult(runID int64, testID, fingerprintHex, outcome string, score float64, skipReason string) error {
	return g.skips.RecordResult(runID, testID, fingerprintHex, outcome, score, skipReason)
}
