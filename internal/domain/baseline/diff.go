package baseline

import "sort"

// epsilon guards the regression/improvement classification against
// floating-point noise right at zero, matching the convention C8's
// threshold metrics use.
const epsilon = 1e-9

// Diff compares candidate against reference by (test_id, metric): a score
// drop beyond epsilon is a regression, a rise is an improvement, a pair
// present only in candidate is a new test, and one present only in
// reference is a missing test. Regressions and improvements are sorted by
// (test_id, metric) so two runs over identical inputs always render the
// same diff.
func Diff(candidate, reference *Baseline) *DiffResult {
	refIndex := indexEntries(reference)
	candIndex := indexEntries(candidate)

	result := &DiffResult{}

	for key, candEntry := range candIndex {
		refEntry, found := refIndex[key]
		if !found {
			result.NewTests = append(result.NewTests, key)
			continue
		}
		delta := candEntry.Score - refEntry.Score
		entry := DiffEntry{TestID: key.TestID, Metric: key.Metric, CandidateScore: candEntry.Score, BaselineScore: refEntry.Score, Delta: delta}
		switch {
		case delta < -epsilon:
			result.Regressions = append(result.Regressions, entry)
		case delta > epsilon:
			result.Improvements = append(result.Improvements, entry)
		}
	}

	for key := range refIndex {
		if _, found := candIndex[key]; !found {
			result.MissingTests = append(result.MissingTests, key)
		}
	}

	sortDiffEntries(result.Regressions)
	sortDiffEntries(result.Improvements)
	sortKeys(result.NewTests)
	sortKeys(result.MissingTests)

	return result
}

func indexEntries(b *Baseline) map[Key]Entry {
	idx := map[Key]Entry{}
	if b == nil {
		return idx
	}
	for _, e := range b.Entries {
		idx[Key{TestID: e.TestID, Metric: e.Metric}] = e
	}
	return idx
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TestID != entries[j].TestID {
			return entries[i].TestID < entries[j].TestID
		}
		return entries[i].Metric < entries[j].Metric
	})
}

func sortDiffEntries(entries []DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TestID != entries[j].TestID {
			return entries[i].TestID < entries[j].TestID
		}
		return entries[i].Metric < entries[j].Metric
	})
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TestID != keys[j].TestID {
			return keys[i].TestID < keys[j].TestID
		}
		return keys[i].Metric < keys[j].Metric
	})
}
