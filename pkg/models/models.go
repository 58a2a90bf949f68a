// Package models defines data structures shared across the application.
package models

import (
	"time"
)

// IssueSchemaVersion identifies the shape of Issue. Bump it whenever a field is
// added, removed or changes meaning.
const IssueSchemaVersion = 1

// TimestampLayout is the on-disk layout for every stored timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000000-0700"

// DateLayout is the layout used for week_start keys and report headers.
const DateLayout = "2006-01-02"

// User is the subset of a Jira user the application cares about.
type User struct {
	// ID is the stable account identifier (accountId on Cloud, name on Server)
	ID string

	// DisplayName is the human readable name shown in greetings
	DisplayName string

	// TimeZone is the IANA zone configured on the Jira profile
	TimeZone string
}

// Issue is the normalized form of a Jira issue, produced right after a search
// page is fetched. Nothing past the fetcher touches the raw payload shape.
type Issue struct {
	// SchemaVersion is always IssueSchemaVersion for freshly normalized issues
	SchemaVersion int

	// Key is the tracker-issued identifier (e.g., "PROJ-123")
	Key string

	Summary     string
	Description string

	// Status is the workflow status name (e.g., "In Progress")
	Status string

	// StatusCategory is the lower-case category key or name (e.g., "done")
	StatusCategory string

	// Reporter and Assignee are stable account identifiers, empty when unset
	Reporter string
	Assignee string

	Created        time.Time
	Updated        time.Time
	ResolutionDate *time.Time

	// Comments and Changelog hold events with their user objects collapsed
	// to account identifiers.
	Comments  []map[string]any
	Changelog []map[string]any

	// Raw is the normalized snapshot of the whole remote payload
	Raw map[string]any
}

// Ticket is one row of the ticket table.
type Ticket struct {
	Key         string
	Reporter    string
	Assignee    string
	Description string
	Status      string
	Comment     string
	Changelog   string
	CreatedDate string
	Raw         string
}

// Row returns the ticket as a positional row in table column order.
func (t Ticket) Row() []any {
	return []any{t.Key, t.Reporter, t.Assignee, t.Description, t.Status, t.Comment, t.Changelog, t.CreatedDate, t.Raw}
}

// Checkpoint is one row of the last_retrieval table.
type Checkpoint struct {
	RetrievalDate  string
	RetrievalCount int
}

// Row returns the checkpoint as a positional row in table column order.
func (c Checkpoint) Row() []any {
	return []any{c.RetrievalDate, c.RetrievalCount}
}

// ReportEntry is a ticket summary as it appears in a weekly report bucket.
type ReportEntry struct {
	Key         string    `json:"key"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	Reporter    string    `json:"reporter"`
	CreatedDate time.Time `json:"createdDate"`
	UpdatedDate time.Time `json:"updatedDate"`
}

// WeeklyReport is one row of the weekly_report table, with the buckets
// serialized as JSON arrays of ReportEntry.
type WeeklyReport struct {
	WeekStart   string
	Resolved    string
	Testing     string
	InProgress  string
	Open        string
	UpdatedDate string
}

// Row returns the report as a positional row in table column order.
func (r WeeklyReport) Row() []any {
	return []any{r.WeekStart, r.Resolved, r.Testing, r.InProgress, r.Open, r.UpdatedDate}
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses stored timestamps and Jira's own timestamp format,
// which carries milliseconds rather than microseconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02T15:04:05-0700", s)
	if err == nil {
		return t, nil
	}
	if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t2, nil
	}
	return time.Time{}, err
}
