package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/adapter/outbound/state"
	"github.com/assay-dev/assay/internal/domain/baseline"
)

var (
	baselineReportCandidate string
	baselineReportReference string
	baselineReportSuite     string
	baselineReportFormat    string
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage and diff baseline files",
}

var baselineReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Diff a candidate baseline against a reference baseline",
	Long: `report loads --candidate and --reference baseline.json files and prints
their diff: regressions, improvements, new tests, and tests missing from
the candidate. Exits 1 if any regression is found.`,
	RunE: runBaselineReport,
}

func init() {
	baselineReportCmd.Flags().StringVar(&baselineReportCandidate, "candidate", "", "path to the candidate baseline.json (required)")
	baselineReportCmd.Flags().StringVar(&baselineReportReference, "reference", "", "path to the reference baseline.json (required)")
	baselineReportCmd.Flags().StringVar(&baselineReportSuite, "suite", "", "suite name, used only when a baseline file does not yet exist")
	baselineReportCmd.Flags().StringVar(&baselineReportFormat, "format", "markdown", "output format: json or markdown")
	_ = baselineReportCmd.MarkFlagRequired("candidate")
	_ = baselineReportCmd.MarkFlagRequired("reference")

	baselineCmd.AddCommand(baselineReportCmd)
	rootCmd.AddCommand(baselineCmd)
}

func runBaselineReport(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	candidate, err := loadDomainBaseline(baselineReportCandidate, baselineReportSuite, logger)
	if err != nil {
		return fmt.Errorf("load candidate baseline: %w", err)
	}
	reference, err := loadDomainBaseline(baselineReportReference, baselineReportSuite, logger)
	if err != nil {
		return fmt.Errorf("load reference baseline: %w", err)
	}

	diff := baseline.Diff(candidate, reference)

	switch baselineReportFormat {
	case "json":
		encoded, err := baseline.RenderDiffJSON(diff)
		if err != nil {
			return fmt.Errorf("render diff json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	default:
		fmt.Fprint(cmd.OutOrStdout(), baseline.RenderDiffMarkdown(diff))
	}

	if len(diff.Regressions) > 0 {
		os.Exit(1)
	}
	return nil
}

func loadDomainBaseline(path, suite string, logger *slog.Logger) (*baseline.Baseline, error) {
	store := state.NewFileBaselineStore(path, logger)
	loaded, err := store.Load(suite)
	if err != nil {
		return nil, err
	}
	return loaded.ToDomain(), nil
}
