package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/digkill/nexora/internal/repository"
	"github.com/digkill/nexora/internal/service"
)

func newCreditsCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant user credits",
	}

	ledger := func() (*service.Ledger, error) {
		db, dialect, err := cmdCtx.ensureDB()
		if err != nil {
			return nil, err
		}
		return service.NewLedger(repository.NewCreditRepository(db, dialect)), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <user> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			l, err := ledger()
			if err != nil {
				return err
			}
			if err := l.Grant(cmd.Context(), args[0], amount); err != nil {
				return err
			}
			balance, err := l.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmdCtx.log.Info("credits granted", "user_id", args[0], "amount", amount)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], balance)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <user>",
		Short: "Print a user's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger()
			if err != nil {
				return err
			}
			balance, err := l.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], balance)
			return nil
		},
	})
	return cmd
}
