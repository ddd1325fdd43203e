package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assay-dev/assay/internal/adapter/outbound/sqlstore"
)

var quarantineCacheDB string

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Manage quarantined test ids",
}

var quarantineAddCmd = &cobra.Command{
	Use:   "add <test-id>",
	Short: "Quarantine a test id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQuarantineStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.AddQuarantine(args[0], quarantineReason); err != nil {
			return fmt.Errorf("add quarantine entry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "quarantined %q\n", args[0])
		return nil
	},
}

var quarantineRemoveCmd = &cobra.Command{
	Use:   "remove <test-id>",
	Short: "Remove a test id from quarantine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQuarantineStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.RemoveQuarantine(args[0]); err != nil {
			return fmt.Errorf("remove quarantine entry: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %q from quarantine\n", args[0])
		return nil
	},
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every quarantined test id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openQuarantineStore()
		if err != nil {
			return err
		}
		defer store.Close()
		entries, err := store.ListQuarantine()
		if err != nil {
			return fmt.Errorf("list quarantine entries: %w", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no quarantined tests")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tadded_at=%s\treason=%s\n", e.TestID, e.AddedAt, e.Reason)
		}
		return nil
	},
}

var quarantineReason string

func init() {
	quarantineCmd.PersistentFlags().StringVar(&quarantineCacheDB, "cache-db", ".assay/cache.db", "path to the SQLite cache/quarantine database")
	quarantineAddCmd.Flags().StringVar(&quarantineReason, "reason", "", "free-form note explaining why this test is quarantined")

	quarantineCmd.AddCommand(quarantineAddCmd, quarantineRemoveCmd, quarantineListCmd)
	rootCmd.AddCommand(quarantineCmd)
}

func openQuarantineStore() (*sqlstore.Store, error) {
	store, err := sqlstore.Open(quarantineCacheDB, newLogger())
	if err != nil {
		return nil, fmt.Errorf("open cache/quarantine store: %w", err)
	}
	return store, nil
}
