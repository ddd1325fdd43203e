package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/runner"
)

// toTestCases converts the suite's YAML-decoded test list into the
// runner's domain TestCase shape. The legacy per-test Policy path (version=0
// configs, inlined by `migrate` in current ones) is folded into
// PolicyContentSHA so a policy edit changes a test's composite fingerprint
// even when the test's own Expected/Assertions fields are untouched.
func toTestCases(tests []config.TestCaseConfig) ([]runner.TestCase, error) {
	out := make([]runner.TestCase, len(tests))
	for i, tc := range tests {
		sha, err := policyContentSHA(tc.Policy)
		if err != nil {
			return nil, fmt.Errorf("test %q: %w", tc.ID, err)
		}
		out[i] = runner.TestCase{
			ID:               tc.ID,
			Prompt:           tc.Input.Prompt,
			Context:          tc.Input.Context,
			Expected:         tc.Expected,
			Assertions:       tc.Assertions,
			Tags:             tc.Tags,
			Metadata:         tc.Metadata,
			PolicyContentSHA: sha,
		}
	}
	return out, nil
}

// policyContentSHA hashes a legacy external policy file's bytes, if path is
// set. A test with no Policy reference contributes an empty string, leaving
// its fingerprint unaffected by this field.
func policyContentSHA(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file %q: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// configFingerprint hashes the resolved config file's bytes: the
// config_fingerprint that `run` stamps onto the baseline it writes. No
// command compares a loaded baseline's fingerprint against it. An
// unresolved config (env-only, no file on disk) contributes an empty
// fingerprint.
func configFingerprint() (string, error) {
	path := config.ConfigFileUsed()
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config file %q: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
