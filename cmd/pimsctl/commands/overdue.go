package commands

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pims/internal/custody"
	filestore "pims/internal/file/store/file"
	"pims/internal/notification"
	"pims/internal/platform/config"
	"pims/internal/platform/logger"
	"pims/internal/platform/postgres"
	"pims/internal/platform/redis"
	"pims/pkg/domain"
	audit "pims/pkg/platform/audit"
	auditpostgres "pims/pkg/platform/audit/store/postgres"
)

func newOverdueCmd() *cobra.Command {
	var (
		threshold int
		output    string
		actorID   string
	)

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Report files held longer than the custody threshold",
		Long: `Without a subcommand, prints active files whose custodian has held them
longer than the threshold, longest first.

Examples:
  # Report with the configured threshold
  pimsctl overdue

  # Report as JSON with a 5 day threshold
  pimsctl overdue --threshold 5 --output json

  # Warn every overdue custodian and record the warning in the audit log
  pimsctl overdue notify --actor 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tracker, err := newTracker(cfg, db, nil)
			if err != nil {
				return err
			}
			items, err := tracker.OverdueReport(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			return printOverdue(cmd.OutOrStdout(), items, output)
		},
	}
	cmd.PersistentFlags().IntVar(&threshold, "threshold", 0, "Overdue threshold in days (default from PIMS_OVERDUE_THRESHOLD_DAYS)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	notify := &cobra.Command{
		Use:   "notify",
		Short: "Notify custodians of overdue files and record the warnings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := domain.ParseUserID(actorID)
			if err != nil {
				return fmt.Errorf("--actor: %w", err)
			}
			cfg := config.FromEnv()
			db, err := openDatabase(cmd, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			log := logger.New(cfg.LogLevel)
			var sink notification.Sink = notification.NewLogSink(log)
			client, err := redis.New(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			if client != nil {
				defer client.Close()
				sink = notification.NewRedisSink(client.Client, cfg.Redis.Channel, cfg.Redis.InboxLimit)
			}

			tracker, err := newTracker(cfg, db, notification.NewNotifier(sink, notification.WithLogger(log)))
			if err != nil {
				return err
			}
			n, err := tracker.EscalateOverdue(cmd.Context(), actor, threshold)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d overdue files escalated\n", n)
			return nil
		},
	}
	notify.Flags().StringVar(&actorID, "actor", "", "User ID recorded as the author of the warnings (required)")
	_ = notify.MarkFlagRequired("actor")
	cmd.AddCommand(notify)
	return cmd
}

func openDatabase(cmd *cobra.Command, cfg config.Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errNoDatabase
	}
	return postgres.Open(cmd.Context(), cfg.Database)
}

func newTracker(cfg config.Config, db *sql.DB, notifier *notification.Notifier) (*custody.Tracker, error) {
	log := auditpostgres.New(db)
	return custody.New(log, filestore.NewPostgres(db),
		custody.WithLogger(logger.New(cfg.LogLevel)),
		custody.WithNotifier(notifier),
		custody.WithRecorder(audit.NewRecorder(log)),
		custody.WithThreshold(cfg.Registry.OverdueThresholdDays),
	)
}

func printOverdue(w io.Writer, items []custody.OverdueItem, format string) error {
	switch format {
	case "json":
		if items == nil {
			items = []custody.OverdueItem{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "table", "":
		if len(items) == 0 {
			_, err := fmt.Fprintln(w, "no overdue files")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE NUMBER\tTITLE\tCUSTODIAN\tDAYS")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", it.FileNumber, it.Title, it.CustodianID, it.Days)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
