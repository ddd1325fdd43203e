// Package cache implements the Fingerprint & Cache Layer (C6): a VCR
// response cache that short-circuits live provider calls within and
// across runs, and an incremental-skip cache that queries prior passing
// results by composite fingerprint.
package cache

import "github.com/assay-dev/assay/internal/domain/trace"

// Response is the cached unit: a recorded model response, identical in
// shape to a trace-replayed one so both sources feed C8's metric
// evaluators uniformly.
type Response = trace.Response

// ResponseCache is the narrow persistence interface the VCR cache needs.
// sqlstore.Store satisfies it against a SQLite-backed table.
type ResponseCache interface {
	Get(key string) (Response, bool, error)
	Put(key string, resp Response) error
}

// SkipChecker is the narrow persistence interface the incremental-skip
// cache needs: run bookkeeping plus a fingerprint-keyed lookup over the
// most recent passing result.
type SkipChecker interface {
	CreateRun(suite string) (int64, error)
	FinalizeRun(runID int64, status string) error
	RecordResult(runID int64, testID, fingerprintHex, outcome string, score float64, skipReason string) error
	LastPassingByFingerprint(fingerprintHex string) (*SkipRecord, bool, error)
}

// SkipRecord describes the prior passing result an incremental-skip hit
// is reported against.
type SkipRecord struct {
	PreviousRunID int64
	PreviousAt    string
	PreviousScore float64
	Reason        string
}
