// Package cmd provides the CLI commands for assay.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/config"
)

var (
	cfgFile   string
	strictCfg bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "assay",
	Short: "assay - deterministic evaluation and policy-enforcement engine for agentic pipelines",
	Long: `assay evaluates a declarative test suite against either a live provider or a
recorded trace and exits with a stable code, for use as a CI gate on agentic/LLM
pipelines.

Configuration is loaded from assay.yaml in the current directory, $HOME/.assay/,
or /etc/assay/. Environment variables override config values with the ASSAY_
prefix, e.g. ASSAY_SETTINGS_PARALLEL=8.

Commands:
  run                 Run a suite against a live provider or recorded trace
  ci                  Alias for run with CI-friendly defaults
  validate            Validate a suite config (and referenced policy files)
  trace               Manage recorded trace files
  coverage            Report policy tool/rule coverage against recorded traces
  calibrate           Recommend thresholds from historical scores
  baseline            Manage and diff baseline files
  doctor              Check config/policy/trace/store health (not baseline files)
  migrate             Upgrade a version=0 suite config to version=1
  explain             Render a sequence-rule walk as a structured explanation
  quarantine          Manage quarantined test ids
  mcp-server          Serve the assay_* policy tools over MCP stdio JSON-RPC`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./assay.yaml)")
	rootCmd.PersistentFlags().BoolVar(&strictCfg, "strict", false, "reject unknown YAML keys in the config file (policy files are not checked)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
}

func initConfig() {
	config.InitViper(cfgFile)
	if strictCfg {
		config.SetStrictOverride()
	}
}

// newLogger builds the shared structured logger, text by default and JSON
// when --log-format json is passed (CI-friendly), matching §2.2's ambient
// logging convention.
func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
