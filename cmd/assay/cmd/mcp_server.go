package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/adapter/inbound/stdio"
	"github.com/assay-dev/assay/internal/domain/mcplimits"
)

var (
	mcpServerVersion       string
	mcpServerPolicyRoot    string
	mcpServerMaxMsgBytes   int
	mcpServerMaxFieldBytes int
	mcpServerMaxToolCalls  int
	mcpServerTimeoutMS     int
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Serve the assay_* policy tools over MCP stdio JSON-RPC",
	Long: `mcp-server runs an MCP server on stdin/stdout, built on
modelcontextprotocol/go-sdk's own Server/AddTool/Run dispatch, exposing
assay_check_args, assay_check_sequence, assay_policy_decide,
assay_check_coverage, and assay_explain_trace to any MCP client
(an IDE assistant, an agent harness) that spawns this process as a
child and speaks stdio JSON-RPC 2.0 to it.

Every policy_path argument a client sends is resolved inside
--policy-root (canonicalized at startup); a path that escapes the root
via .., an absolute path, or a symlink is rejected before the policy
file is ever opened.`,
	RunE: runMCPServer,
}

func init() {
	mcpServerCmd.Flags().StringVar(&mcpServerVersion, "version", "dev", "server version string reported during MCP initialize")
	mcpServerCmd.Flags().StringVar(&mcpServerPolicyRoot, "policy-root", ".", "directory every policy_path argument is resolved inside")
	mcpServerCmd.Flags().IntVar(&mcpServerMaxMsgBytes, "max-msg-bytes", 10<<20, "reject a tool call whose encoded arguments exceed this many bytes")
	mcpServerCmd.Flags().IntVar(&mcpServerMaxFieldBytes, "max-field-bytes", 1<<20, "reject a tool call with any single string field longer than this")
	mcpServerCmd.Flags().IntVar(&mcpServerMaxToolCalls, "max-tool-calls", 10000, "reject an assay_check_sequence call with more than this many calls")
	mcpServerCmd.Flags().IntVar(&mcpServerTimeoutMS, "timeout-ms", 30000, "per-call timeout in milliseconds")
	rootCmd.AddCommand(mcpServerCmd)
}

func runMCPServer(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	limits := mcplimits.Limits{
		MaxMsgBytes:   mcpServerMaxMsgBytes,
		MaxFieldBytes: mcpServerMaxFieldBytes,
		MaxToolCalls:  mcpServerMaxToolCalls,
		TimeoutMS:     mcpServerTimeoutMS,
	}

	server, err := stdio.NewServer(mcpServerVersion, limits, mcpServerPolicyRoot, stdio.NewPolicyCoverageChecker())
	if err != nil {
		return fmt.Errorf("build mcp server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("mcp server listening on stdio", "policy_root", mcpServerPolicyRoot)
	if err := server.Run(ctx, mcpsdk.NewStdioTransport()); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
