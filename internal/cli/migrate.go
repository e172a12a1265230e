package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"equipment-reminders/internal/repository"
)

// NewMigrateCommand brings the database schema up to date and exits.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return wrapExitError(ExitCommandError, "failed to start", err)
			}
			db, err := repository.NewDB(cfg.DatabaseURL)
			if err != nil {
				return wrapExitError(ExitCommandError, "migration failed", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.DatabaseURL)
			return nil
		},
	}
}
