package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/config"
	"github.com/assay-dev/assay/internal/domain/policy"
)

var validatePolicyPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a suite config (and an optional referenced policy file)",
	Long: `validate loads and validates the suite config (schema, unique test ids, a
single recognized Expected variant per test) and, if --policy is given,
parses and validates the policy file's alias graph.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validatePolicyPath, "policy", "", "path to a policy file to validate alongside the suite config")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config ok: suite %q, %d test(s)\n", cfg.Suite, len(cfg.Tests))

	if validatePolicyPath != "" {
		loaded, err := policy.LoadFile(validatePolicyPath)
		if err != nil {
			return fmt.Errorf("policy invalid: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "policy ok: %s (%d sequence rule(s), %d alias(es))\n",
			validatePolicyPath, len(loaded.Policy.Sequences), len(loaded.Policy.Aliases))
	}

	return nil
}
