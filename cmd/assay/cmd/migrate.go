package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/policy"
)

var migrateOutput string

var migrateCmd = &cobra.Command{
	Use:   "migrate <config-file>",
	Short: "Upgrade a version=0 suite config to version=1",
	Long: `migrate reads a version=0 EvalConfig, inlines every test's legacy
"policy: <path>" reference into its Expected variant's own schema/rules
field (args_valid.schema from the policy's require_args, sequence_valid.rules
from its sequence rules), clears the Policy field, and rewrites the file
with version=1 — in place, or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateOutput, "output", "", "write the migrated config here instead of overwriting the input")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg config.EvalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	if cfg.Version != 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already version=%d, nothing to migrate\n", path, cfg.Version)
		return nil
	}

	policyCache := map[string]*policy.Loaded{}
	for i := range cfg.Tests {
		tc := &cfg.Tests[i]
		if tc.Policy == "" {
			continue
		}

		loaded, ok := policyCache[tc.Policy]
		if !ok {
			loaded, err = policy.LoadFile(tc.Policy)
			if err != nil {
				return fmt.Errorf("test %q: load policy %q: %w", tc.ID, tc.Policy, err)
			}
			policyCache[tc.Policy] = loaded
		}

		if err := inlinePolicy(tc, loaded.Policy); err != nil {
			return fmt.Errorf("test %q: %w", tc.ID, err)
		}
		tc.Policy = ""
	}
	cfg.Version = 1

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal migrated config: %w", err)
	}

	dest := path
	if migrateOutput != "" {
		dest = migrateOutput
	}
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return fmt.Errorf("write migrated config %q: %w", dest, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "migrated %s -> %s (version=1, %d policy file(s) inlined)\n", path, dest, len(policyCache))
	return nil
}

// inlinePolicy folds pol's declarations into tc's Expected variant, matching
// whichever discriminator key is already present: args_valid gets pol's
// per-tool schemas, sequence_valid gets pol's sequence rules. A test with
// neither key has nothing to inline and is left as-is apart from clearing
// Policy.
func inlinePolicy(tc *config.TestCaseConfig, pol *policy.Policy) error {
	if _, ok := tc.Expected["args_valid"]; ok {
		schema, err := toRawSchemaMap(pol)
		if err != nil {
			return fmt.Errorf("encode args_valid schema: %w", err)
		}
		tc.Expected["schema"] = schema
	}
	if _, ok := tc.Expected["sequence_valid"]; ok {
		encoded, err := json.Marshal(pol.Sequences)
		if err != nil {
			return fmt.Errorf("encode sequence_valid rules: %w", err)
		}
		var rules []map[string]any
		if err := json.Unmarshal(encoded, &rules); err != nil {
			return fmt.Errorf("decode sequence_valid rules: %w", err)
		}
		tc.Expected["rules"] = rules
	}
	return nil
}

func toRawSchemaMap(pol *policy.Policy) (map[string]any, error) {
	out := make(map[string]any, len(pol.Tools.RequireArgs))
	for tool, raw := range pol.Tools.RequireArgs {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("tool %q: %w", tool, err)
		}
		out[tool] = decoded
	}
	return out, nil
}
