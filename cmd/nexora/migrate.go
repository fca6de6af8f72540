package main

import (
	"github.com/spf13/cobra"

	"github.com/digkill/nexora/internal/database"
)

func newMigrateCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dialect, err := cmdCtx.ensureDB()
			if err != nil {
				return err
			}
			if err := database.Migrate(cmd.Context(), db, dialect); err != nil {
				return err
			}
			cmdCtx.log.Info("migrations applied", "db", dialect.Name)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dialect, err := cmdCtx.ensureDB()
			if err != nil {
				return err
			}
			return database.MigrationStatus(cmd.Context(), db, dialect)
		},
	})
	return cmd
}
