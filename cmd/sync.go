package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/internal/store"
	"github.com/danielolaszy/jiradigest/internal/ticketsync"
)

// syncCmd mirrors the user's tickets into the local store.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new and updated tickets into the local store",
	Long: `Fetch the tickets assigned to JiraOwner and store them in the local database.

The first run fetches the full history. Later runs only ask Jira for tickets
created after the newest stored ticket or updated since the previous run, and
record a retrieval checkpoint every time, even when nothing changed.

Example:
  jiradigest sync --config config.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return runSync(cmd.Context(), cfg, s.fetcher, s.location)
	},
}

func runSync(ctx context.Context, cfg *config.Config, searcher ticketsync.Searcher, loc *time.Location) error {
	logging.Info("starting synchronization",
		"owner", cfg.Jira.Owner,
		"storage", cfg.Store.RootDir,
		"timezone", loc.String())

	return store.WithStore(ctx, cfg.Store.RootDir, func(tx *store.Tx) error {
		result, err := ticketsync.Sync(ctx, tx, searcher, ticketsync.Options{
			Owner:    cfg.Jira.Owner,
			Location: loc,
		})
		if err != nil {
			return err
		}

		logging.Info("synchronization complete",
			"fetched", result.Fetched,
			"full_fetch", result.FullFetch)
		return nil
	})
}
