package trace

// jaroWinkler returns the Jaro-Winkler similarity of a and b in [0, 1].
// No Jaro-Winkler (or general fuzzy-string) library appears anywhere in
// the example pack, so this is implemented directly; it is only ever used
// to rank a trace miss's closest known prompt for a diagnostic fix hint,
// never for anything load-bearing.
func jaroWinkler(a, b string) float64 {
	jaro := jaroSimilarity(a, b)
	if jaro == 0 {
		return 0
	}

	prefixLen := 0
	maxPrefix := 4
	for prefixLen < len(a) && prefixLen < len(b) && prefixLen < maxPrefix && a[prefixLen] == b[prefixLen] {
		prefixLen++
	}

	const scalingFactor = 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1-jaro)
}

func jaroSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	matchDistance := la
	if lb > la {
		matchDistance = lb
	}
	matchDistance = matchDistance/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	aMatches := make([]bool, la)
	bMatches := make([]bool, lb)
	matches := 0

	for i := 0; i < la; i++ {
		start := i - matchDistance
		if start < 0 {
			start = 0
		}
		end := i + matchDistance + 1
		if end > lb {
			end = lb
		}
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions))/m) / 3
}

// closestMatch is the (prompt, similarity) pair returned as a fix hint when a
// lookup prompt is not present in the loaded trace.
type closestMatch struct {
	Prompt     string
	Similarity float64
}

// findClosest scans keys for the entry with the highest Jaro-Winkler
// similarity to prompt. Returns nil if keys is empty.
func findClosest(prompt string, keys []string) *closestMatch {
	var best *closestMatch
	for _, k := range keys {
		sim := jaroWinkler(prompt, k)
		if best == nil || sim > best.Similarity {
			best = &closestMatch{Prompt: k, Similarity: sim}
		}
	}
	return best
}
