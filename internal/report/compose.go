package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielolaszy/jiradigest/pkg/models"
)

// Subject returns the email subject for a week.
func Subject(weekStart, weekEnd time.Time) string {
	return fmt.Sprintf("Weekly Jira Report %s - %s", weekStart.Format(models.DateLayout), weekEnd.Format(models.DateLayout))
}

// Compose renders the digest body. Every section is present, with its count,
// even when empty.
func Compose(b Buckets, recipientName string, weekStart, weekEnd time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Hi %s,\n\n", recipientName)
	fmt.Fprintf(&sb, "Here is your weekly report for %s - %s:\n\n",
		weekStart.Format(models.DateLayout), weekEnd.Format(models.DateLayout))

	for _, section := range b.Sections() {
		fmt.Fprintf(&sb, "%s: %d issues\n", section.Title, len(section.Entries))
		for i, e := range section.Entries {
			fmt.Fprintf(&sb, "%d. %s - %s - %s\n", i+1, e.Key, e.Status, e.Summary)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Best,\n")
	return sb.String()
}
