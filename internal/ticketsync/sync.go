// Package ticketsync mirrors the tickets assigned to one owner into the local
// store, fetching only what changed since the previous run.
//
// Freshness is at-least-once: the query window is derived from two different
// checkpoints (newest ticket creation and last retrieval), so a ticket can be
// fetched again by a later run but an update after the previous retrieval is
// not skipped. Re-ingesting a ticket replaces its row.
package ticketsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/internal/store"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

// Searcher returns every normalized issue matching a JQL query.
type Searcher interface {
	Search(ctx context.Context, jql string) ([]models.Issue, error)
}

// Session is the part of a store session the sync engine needs.
type Session interface {
	Upsert(ctx context.Context, table string, rows [][]any) error
	LatestValue(ctx context.Context, table, column string, loc *time.Location) (string, bool, error)
}

// Options configures a sync run.
type Options struct {
	// Owner is the JQL assignee expression, e.g. "currentUser()"
	Owner string
	// Location is the timezone checkpoints are expressed in for JQL
	Location *time.Location
	// Now overrides the clock for the retrieval checkpoint
	Now func() time.Time
}

// Result describes a completed sync run.
type Result struct {
	Fetched int
	JQL     string
	// FullFetch is true when no checkpoints existed and the whole history was fetched
	FullFetch bool
}

// Sync fetches new and updated tickets and writes them together with a new
// retrieval checkpoint. Both writes go through the same session; a run that
// fetched nothing still records a checkpoint with a zero count.
func Sync(ctx context.Context, tx Session, searcher Searcher, opts Options) (Result, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	// The checkpoint is the time the run started, so updates made while pages
	// are being fetched fall inside the next run's window.
	started := now()

	latestTicket, hasTicket, err := tx.LatestValue(ctx, store.TableTicket, "createdDate", loc)
	if err != nil {
		return Result{}, err
	}
	if hasTicket {
		logging.Info("detected latest ticket", "created", latestTicket, "timezone", loc.String())
	}

	latestRetrieval, hasRetrieval, err := tx.LatestValue(ctx, store.TableLastRetrieval, "retrievalDate", loc)
	if err != nil {
		return Result{}, err
	}
	if hasRetrieval {
		logging.Info("detected latest retrieval", "retrieved", latestRetrieval, "timezone", loc.String())
	}

	result := Result{FullFetch: !(hasTicket && hasRetrieval)}
	result.JQL = BuildQuery(opts.Owner, latestTicket, latestRetrieval)

	issues, err := searcher.Search(ctx, result.JQL)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch tickets: %w", err)
	}
	result.Fetched = len(issues)

	rows := make([][]any, 0, len(issues))
	for _, issue := range issues {
		ticket, err := TicketFromIssue(issue)
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, ticket.Row())
	}

	if err := tx.Upsert(ctx, store.TableTicket, rows); err != nil {
		return Result{}, err
	}

	checkpoint := models.Checkpoint{
		RetrievalDate:  models.FormatTimestamp(started),
		RetrievalCount: len(issues),
	}
	if err := tx.Upsert(ctx, store.TableLastRetrieval, [][]any{checkpoint.Row()}); err != nil {
		return Result{}, err
	}

	logging.Info("updated database",
		"fetched", result.Fetched,
		"full_fetch", result.FullFetch,
		"checkpoint", checkpoint.RetrievalDate)

	return result, nil
}

// BuildQuery returns the JQL for a sync run. Both checkpoints must be present
// for the incremental window; otherwise every ticket of the owner is fetched.
func BuildQuery(owner, latestTicket, latestRetrieval string) string {
	jql := fmt.Sprintf("assignee = %s", owner)
	if latestTicket != "" && latestRetrieval != "" {
		jql += fmt.Sprintf(` AND (createdDate > "%s" OR updatedDate > "%s")`, latestTicket, latestRetrieval)
	}
	return jql
}

// TicketFromIssue flattens a normalized issue into a ticket row.
func TicketFromIssue(issue models.Issue) (models.Ticket, error) {
	comments, err := marshalEvents(issue.Comments)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to serialize comments of %s: %w", issue.Key, err)
	}
	changelog, err := marshalEvents(issue.Changelog)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to serialize changelog of %s: %w", issue.Key, err)
	}
	raw, err := json.Marshal(issue.Raw)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to serialize payload of %s: %w", issue.Key, err)
	}

	return models.Ticket{
		Key:         issue.Key,
		Reporter:    issue.Reporter,
		Assignee:    issue.Assignee,
		Description: issue.Description,
		Status:      issue.Status,
		Comment:     comments,
		Changelog:   changelog,
		CreatedDate: models.FormatTimestamp(issue.Created),
		Raw:         string(raw),
	}, nil
}

// marshalEvents serializes an event list; a missing list is stored as an empty string.
func marshalEvents(events []map[string]any) (string, error) {
	if events == nil {
		return "", nil
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
