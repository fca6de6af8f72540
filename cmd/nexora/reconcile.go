package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digkill/nexora/internal/metrics"
)

func newReconcileCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Apply one batch of pending refunds and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dialect, err := cmdCtx.ensureDB()
			if err != nil {
				return err
			}
			reconciler := cmdCtx.newReconciler(db, newStores(db, dialect), metrics.New(nil))
			applied, err := reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d pending refund(s)\n", applied)
			return nil
		},
	}
}
