package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/internal/mailer"
	"github.com/danielolaszy/jiradigest/internal/scheduler"
)

// scheduleCmd keeps running, syncing and reporting on cron schedules.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync and report on cron schedules until interrupted",
	Long: `Run the sync job on SyncCron and the report job on ReportCron, evaluated in
your timezone. Only one job runs at a time; a job due while another is running
is skipped.

Defaults:
  SyncCron   */30 * * * *
  ReportCron 0 17 * * FRI`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := config.ValidateReportConfig(cfg); err != nil {
			return err
		}
		sender, err := mailer.NewSMTPSender(cfg)
		if err != nil {
			return err
		}

		s, err := connect(ctx, cfg)
		if err != nil {
			return err
		}

		sched := scheduler.New(s.location)
		if err := sched.Add(cfg.Schedule.SyncCron, "sync", func(ctx context.Context) error {
			return runSync(ctx, cfg, s.fetcher, s.location)
		}); err != nil {
			return err
		}
		if err := sched.Add(cfg.Schedule.ReportCron, "report", func(ctx context.Context) error {
			return runReport(ctx, cfg, s.fetcher, s.user, s.location, sender)
		}); err != nil {
			return err
		}

		logging.Info("scheduler running, press Ctrl+C to stop", "timezone", s.location.String())
		sched.Run(ctx)
		return nil
	},
}
