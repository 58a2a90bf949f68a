package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/internal/mailer"
	"github.com/danielolaszy/jiradigest/internal/report"
	"github.com/danielolaszy/jiradigest/internal/store"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

var dryRun bool

// reportCmd builds, stores and mails the weekly digest.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and email the weekly digest of your open-sprint tickets",
	Long: `Build the weekly digest for the current Monday to Sunday week.

The tickets assigned to JiraOwner in the open sprints of JiraProject are
grouped into four sections:

- Resolved this week: done tickets resolved during the week
- Testing this week: tickets in Testing updated during the week
- In progress this week: tickets In Progress
- Open this week: everything else

The report is saved in the local database, replacing an earlier report for the
same week, and emailed to EmailRecipient. With --dry-run the email is printed
instead of sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateReportConfig(cfg); err != nil {
			return err
		}

		var sender mailer.Sender
		if dryRun {
			sender = mailer.WriterSender{W: cmd.OutOrStdout()}
		} else {
			smtp, err := mailer.NewSMTPSender(cfg)
			if err != nil {
				return err
			}
			sender = smtp
		}

		s, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return runReport(cmd.Context(), cfg, s.fetcher, s.user, s.location, sender)
	},
}

func init() {
	reportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the email instead of sending it")
}

// runReport stores the weekly report and sends it once the store session has
// committed, so the database is not locked during the SMTP exchange.
func runReport(ctx context.Context, cfg *config.Config, searcher report.Searcher, user models.User, loc *time.Location, sender mailer.Sender) error {
	recipientName := cfg.Email.RecipientName
	if recipientName == "" {
		recipientName = user.DisplayName
	}

	var result report.Result
	err := store.WithStore(ctx, cfg.Store.RootDir, func(tx *store.Tx) error {
		var err error
		result, err = report.Run(ctx, tx, searcher, report.Options{
			Project:       cfg.Jira.Project,
			Owner:         cfg.Jira.Owner,
			Location:      loc,
			RecipientName: recipientName,
			From:          cfg.Email.Sender,
			To:            cfg.Email.Recipients,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := sender.Send(ctx, result.Message); err != nil {
		return fmt.Errorf("failed to send weekly report: %w", err)
	}

	logging.Info("weekly report sent",
		"subject", result.Subject,
		"recipients", len(cfg.Email.Recipients))
	return nil
}
