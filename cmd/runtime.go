package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/jira"
	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

// session bundles what the sync and report commands need from Jira.
type session struct {
	user     models.User
	location *time.Location
	fetcher  *jira.Fetcher
}

// connect builds the Jira client, identifies the authenticated user and
// resolves the timezone all dates are interpreted in.
func connect(ctx context.Context, cfg *config.Config) (*session, error) {
	client, err := jira.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jira client: %w", err)
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to identify jira user: %w", err)
	}
	logging.Info("authenticated", "user", user.ID, "display_name", user.DisplayName)

	loc, err := resolveLocation(cfg, user)
	if err != nil {
		return nil, err
	}

	return &session{
		user:     user,
		location: loc,
		fetcher:  jira.NewFetcher(client, cfg.Jira.PageSize),
	}, nil
}

// resolveLocation prefers the configured Timezone, then the timezone on the
// user's Jira profile, then UTC.
func resolveLocation(cfg *config.Config, user models.User) (*time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if loc != nil {
		return loc, nil
	}

	if user.TimeZone != "" {
		loc, err := time.LoadLocation(user.TimeZone)
		if err == nil {
			return loc, nil
		}
		logging.Warn("unknown timezone on jira profile, using UTC", "timezone", user.TimeZone, "error", err)
		return time.UTC, nil
	}

	logging.Warn("no timezone on jira profile, using UTC")
	return time.UTC, nil
}
