package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/assay-dev/assay/internal/domain/diagnostic"
)

// Loaded bundles a parsed Policy with the Resolver built from its alias
// graph: every caller that loads a policy needs both together.
type Loaded struct {
	Policy   *Policy
	Resolver *Resolver
}

// LoadFile reads and parses the policy YAML file at path, then builds its
// alias Resolver. Returns a *diagnostic.Diagnostic (E_CFG_PARSE for a
// malformed file, E_POLICY_INVALID for an invalid alias graph) wrapped as
// the error on failure.
func LoadFile(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diagnostic.New(diagnostic.EPathNotFound, "policy.LoadFile", fmt.Sprintf("read policy file %q: %v", path, err)).
			WithContext(map[string]any{"path": path})
	}

	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, diagnostic.New(diagnostic.ECfgParse, "policy.LoadFile", fmt.Sprintf("parse policy file %q: %v", path, err)).
			WithContext(map[string]any{"path": path})
	}

	if pol.OnError == "" {
		pol.OnError = OnErrorBlock
	}

	for i := range pol.Sequences {
		if pol.Sequences[i].ID == "" {
			pol.Sequences[i].ID = pol.Sequences[i].DefaultID(i)
		}
	}

	resolver, err := NewResolver(pol.Aliases)
	if err != nil {
		return nil, err
	}

	return &Loaded{Policy: &pol, Resolver: resolver}, nil
}
