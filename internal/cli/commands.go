package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newReconcileCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass against the database and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.coordinator.TriggerRun(cmd.Context())
			if err != nil {
				return err
			}
			PrintRunResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newHistoryCommand(flags *GlobalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past reconciliation runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, flags, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.ledger.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			PrintHistory(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 = all)")
	return cmd
}

func newMigrateCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies pending migrations.
			a, err := newApp(cmd.Context(), cmd, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			states, err := a.store.Migrations(cmd.Context())
			if err != nil {
				return err
			}
			PrintMigrations(cmd.OutOrStdout(), a.cfg.Storage.DatabasePath, states)
			return nil
		},
	}
}
