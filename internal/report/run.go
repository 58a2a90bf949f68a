package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/internal/mailer"
	"github.com/danielolaszy/jiradigest/internal/store"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

// Searcher returns every normalized issue matching a JQL query.
type Searcher interface {
	Search(ctx context.Context, jql string) ([]models.Issue, error)
}

// Upserter is the part of a store session the report needs.
type Upserter interface {
	Upsert(ctx context.Context, table string, rows [][]any) error
}

// Options configures a report run.
type Options struct {
	Project string
	Owner   string
	// Location is the user's timezone; it defines the week boundaries
	Location      *time.Location
	RecipientName string
	From          string
	To            []string
	// Now overrides the clock
	Now func() time.Time
}

// Result describes a generated report.
type Result struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Buckets   Buckets
	Subject   string
	Body      string
	// Message is the digest ready for a mailer.Sender
	Message mailer.Message
}

// Query returns the JQL selecting the owner's tickets in open sprints of project.
func Query(project, owner string) string {
	return fmt.Sprintf("project = %s AND assignee = %s AND sprint IN openSprints()", project, owner)
}

// Run fetches the owner's open-sprint tickets, classifies them for the current
// week, stores the report (replacing any earlier one for the same week) and
// renders the digest. Sending is left to the caller, once the store session
// has been committed.
func Run(ctx context.Context, tx Upserter, searcher Searcher, opts Options) (Result, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	generatedAt := now()

	issues, err := searcher.Search(ctx, Query(opts.Project, opts.Owner))
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch sprint tickets: %w", err)
	}

	start, end := WeekBounds(generatedAt, loc)
	logging.Info("classifying tickets",
		"week_start", start.Format(models.DateLayout),
		"week_end", end.Format(models.DateLayout),
		"count", len(issues))

	buckets := Classify(issues, start, end, loc)

	row, err := weeklyReportRow(buckets, start, generatedAt)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Upsert(ctx, store.TableWeeklyReport, [][]any{row.Row()}); err != nil {
		return Result{}, err
	}
	logging.Info("saved weekly report",
		"week_start", row.WeekStart,
		"resolved", len(buckets.Resolved),
		"testing", len(buckets.Testing),
		"in_progress", len(buckets.InProgress),
		"open", len(buckets.Open))

	result := Result{
		WeekStart: start,
		WeekEnd:   end,
		Buckets:   buckets,
		Subject:   Subject(start, end),
		Body:      Compose(buckets, opts.RecipientName, start, end),
	}
	result.Message = mailer.Message{
		From:    opts.From,
		To:      opts.To,
		Subject: result.Subject,
		Body:    result.Body,
	}

	return result, nil
}

func weeklyReportRow(b Buckets, weekStart, generatedAt time.Time) (models.WeeklyReport, error) {
	encoded := make([]string, 0, 4)
	for _, section := range b.Sections() {
		data, err := json.Marshal(section.Entries)
		if err != nil {
			return models.WeeklyReport{}, fmt.Errorf("failed to serialize %q: %w", section.Title, err)
		}
		encoded = append(encoded, string(data))
	}

	return models.WeeklyReport{
		WeekStart:   weekStart.Format(models.DateLayout),
		Resolved:    encoded[0],
		Testing:     encoded[1],
		InProgress:  encoded[2],
		Open:        encoded[3],
		UpdatedDate: models.FormatTimestamp(generatedAt),
	}, nil
}
