// Package commands implements pimsctl, the operator CLI for database
// migrations, custody reports and development tokens.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pimsctl",
		Short: "Operate a PIMS records registry",
		Long: `pimsctl runs operator tasks against a PIMS deployment: applying
database migrations, printing the overdue custody report, escalating
overdue files to their custodians and minting development tokens.

Connection settings come from the same environment variables as the server
(DATABASE_URL, REDIS_URL, JWT_SIGNING_KEY, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newMigrateCmd(), newOverdueCmd(), newTokenCmd())
	return root
}

// Execute runs the root command with ctx as the command context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
