package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pims/internal/platform/config"
	"pims/internal/platform/logger"
	"pims/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				db, err := openDatabase(cmd, cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				return postgres.Migrate(db, logger.New(cfg.LogLevel))
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration (destroys all data)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.FromEnv()
				db, err := openDatabase(cmd, cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.MigrateDown(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
				return nil
			},
		},
	)
	return cmd
}

var errNoDatabase = errors.New("DATABASE_URL is not set")
