// Package report builds the weekly digest: it buckets the owner's open-sprint
// tickets by status, renders the email body and records the report.
package report

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/jiradigest/pkg/models"
)

// Buckets holds the four report sections, each sorted by key number.
type Buckets struct {
	Resolved   []models.ReportEntry
	Testing    []models.ReportEntry
	InProgress []models.ReportEntry
	Open       []models.ReportEntry
}

// Section is a titled bucket, in report order.
type Section struct {
	Title   string
	Entries []models.ReportEntry
}

// Sections returns the buckets in fixed order: resolved, testing, in progress, open.
func (b Buckets) Sections() []Section {
	return []Section{
		{Title: "Resolved this week", Entries: b.Resolved},
		{Title: "Testing this week", Entries: b.Testing},
		{Title: "In progress this week", Entries: b.InProgress},
		{Title: "Open this week", Entries: b.Open},
	}
}

// WeekBounds returns midnight of the Monday and the Sunday of the ISO week
// containing now, in loc.
func WeekBounds(now time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	y, m, d := t.Date()
	offset := (int(t.Weekday()) + 6) % 7
	start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d-offset+6, 0, 0, 0, 0, loc)
	return start, end
}

// Classify assigns each issue to at most one bucket, first match wins:
//
//   - status category "done": resolved, only if resolved within the week
//   - status "testing": testing, only if updated within the week
//   - status "in progress": in progress
//   - anything else: open
//
// Done and testing issues outside the window are dropped. Dates are compared
// as calendar days in loc; both ends of the window are inclusive.
func Classify(issues []models.Issue, weekStart, weekEnd time.Time, loc *time.Location) Buckets {
	if loc == nil {
		loc = time.UTC
	}
	from, to := calendarDay(weekStart, loc), calendarDay(weekEnd, loc)
	inWeek := func(t time.Time) bool {
		day := calendarDay(t, loc)
		return !day.Before(from) && !day.After(to)
	}

	b := Buckets{
		Resolved:   []models.ReportEntry{},
		Testing:    []models.ReportEntry{},
		InProgress: []models.ReportEntry{},
		Open:       []models.ReportEntry{},
	}

	for _, issue := range issues {
		entry := models.ReportEntry{
			Key:         issue.Key,
			Status:      issue.Status,
			Summary:     issue.Summary,
			Reporter:    issue.Reporter,
			CreatedDate: issue.Created.In(loc),
			UpdatedDate: issue.Updated.In(loc),
		}

		switch status := strings.ToLower(issue.Status); {
		case issue.StatusCategory == "done":
			if issue.ResolutionDate != nil && inWeek(*issue.ResolutionDate) {
				b.Resolved = append(b.Resolved, entry)
			}
		case status == "testing":
			if !issue.Updated.IsZero() && inWeek(issue.Updated) {
				b.Testing = append(b.Testing, entry)
			}
		case status == "in progress":
			b.InProgress = append(b.InProgress, entry)
		default:
			b.Open = append(b.Open, entry)
		}
	}

	for _, entries := range [][]models.ReportEntry{b.Resolved, b.Testing, b.InProgress, b.Open} {
		SortByKeyNumber(entries)
	}
	return b
}

// SortByKeyNumber orders entries by the number after the last '-' in the key,
// so PROJ-9 sorts before PROJ-10. Keys without a number go last, by key.
func SortByKeyNumber(entries []models.ReportEntry) {
	slices.SortStableFunc(entries, func(a, b models.ReportEntry) int {
		na, okA := keyNumber(a.Key)
		nb, okB := keyNumber(b.Key)
		switch {
		case okA && okB && na != nb:
			return cmp.Compare(na, nb)
		case okA != okB:
			if okA {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

func keyNumber(key string) (int, bool) {
	i := strings.LastIndex(key, "-")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
