package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/jiradigest/internal/store"
)

// statusCmd reports what the local store holds without contacting Jira.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the local store holds",
	Long: `Show the number of stored tickets and weekly reports, the creation date of
the newest ticket and the time of the last retrieval.

Dates are shown in the configured Timezone, or the machine's local timezone
when none is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		if loc == nil {
			loc = time.Local
		}
		return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg.Store.RootDir, loc)
	},
}

func printStatus(ctx context.Context, w io.Writer, rootDir string, loc *time.Location) error {
	return store.WithStore(ctx, rootDir, func(tx *store.Tx) error {
		tickets, err := tx.CountRows(ctx, store.TableTicket)
		if err != nil {
			return err
		}
		reports, err := tx.CountRows(ctx, store.TableWeeklyReport)
		if err != nil {
			return err
		}
		latestTicket, ok, err := tx.LatestValue(ctx, store.TableTicket, "createdDate", loc)
		if err != nil {
			return err
		}
		if !ok {
			latestTicket = "never"
		}
		latestRetrieval, ok, err := tx.LatestValue(ctx, store.TableLastRetrieval, "retrievalDate", loc)
		if err != nil {
			return err
		}
		if !ok {
			latestRetrieval = "never"
		}

		fmt.Fprintf(w, "Local store: %s\n", filepath.Join(rootDir, store.DBName))
		fmt.Fprintf(w, "- Tickets stored: %d\n", tickets)
		fmt.Fprintf(w, "- Newest ticket created: %s\n", latestTicket)
		fmt.Fprintf(w, "- Last retrieval: %s\n", latestRetrieval)
		fmt.Fprintf(w, "- Weekly reports stored: %d\n", reports)
		fmt.Fprintf(w, "Timezone: %s\n", loc)
		return nil
	})
}
