package state

import (
	"time"

	"github.com/assay-dev/assay/internal/domain/baseline"
)

// ToDomain converts a persisted Baseline into the domain/baseline shape
// Diff and ComputeCoverage operate on. The file format's time.Time
// CreatedAt is rendered as RFC3339 to match the domain type's plain string
// field, which is only ever compared or displayed, never parsed back.
func (b *Baseline) ToDomain() *baseline.Baseline {
	entries := make([]baseline.Entry, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = baseline.Entry{TestID: e.TestID, Metric: e.Metric, Score: e.Score, Meta: e.Meta}
	}
	return &baseline.Baseline{
		SchemaVersion:     b.SchemaVersion,
		Suite:             b.Suite,
		ToolVersion:       b.ToolVersion,
		CreatedAt:         b.CreatedAt.UTC().Format(time.RFC3339),
		ConfigFingerprint: b.ConfigFingerprint,
		Entries:           entries,
	}
}

// FromDomain converts a domain/baseline.Baseline (e.g. freshly computed
// from a suite run) back into the persisted file shape for Save.
func FromDomain(b *baseline.Baseline) *Baseline {
	entries := make([]BaselineEntry, len(b.Entries))
	for i, e := range b.Entries {
		entries[i] = BaselineEntry{TestID: e.TestID, Metric: e.Metric, Score: e.Score, Meta: e.Meta}
	}
	createdAt, err := time.Parse(time.RFC3339, b.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}
	return &Baseline{
		SchemaVersion:     b.SchemaVersion,
		Suite:             b.Suite,
		ToolVersion:       b.ToolVersion,
		CreatedAt:         createdAt,
		ConfigFingerprint: b.ConfigFingerprint,
		Entries:           entries,
	}
}
