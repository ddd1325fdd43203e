// Package fingerprint computes the composite fingerprints that gate C6's
// two caches: the VCR response cache and the incremental-skip cache.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// sep is written between every concatenated field so that, e.g., suite="ab"
// joined with model="c" never collides with suite="a" joined with
// model="bc".
const sep = byte(0)

// Input is the canonical set of fields spec.md's composite fingerprint is
// computed over. Any change to a field here must change the fingerprint;
// leaving every field unchanged must preserve it.
type Input struct {
	Suite             string
	Model             string
	TestID            string
	Prompt            string
	Context           string
	ExpectedCanonical string
	PolicyContentSHA  string
	MetricVersions    []string
}

// Compute returns the SHA-256 hex digest of in's canonical concatenation.
// MetricVersions is sorted before hashing so version ordering never
// affects the result.
func Compute(in Input) string {
	versions := append([]string(nil), in.MetricVersions...)
	sort.Strings(versions)

	h := sha256.New()
	for _, field := range []string{
		in.Suite,
		in.Model,
		in.TestID,
		in.Prompt,
		in.Context,
		in.ExpectedCanonical,
		in.PolicyContentSHA,
		strings.Join(versions, ","),
	} {
		h.Write([]byte(field))
		h.Write([]byte{sep})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey returns the VCR response cache key for (model, prompt,
// fingerprintHex, providerFingerprint): a live call is short-circuited
// whenever this exact key was already seen.
func CacheKey(model, prompt, fingerprintHex, providerFingerprint string) string {
	h := sha256.New()
	for _, field := range []string{model, prompt, fingerprintHex, providerFingerprint} {
		h.Write([]byte(field))
		h.Write([]byte{sep})
	}
	return hex.EncodeToString(h.Sum(nil))
}
