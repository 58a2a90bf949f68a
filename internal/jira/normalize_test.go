package jira

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/jiradigest/pkg/models"
)

const rawIssue = `{
	"expand": "names,changelog",
	"id": "10001",
	"key": "PROJ-12",
	"renderedFields": null,
	"fields": {
		"summary": "Fix the login page",
		"description": "It is broken",
		"status": {"name": "In Progress", "statusCategory": {"key": "indeterminate", "name": "In Progress"}},
		"reporter": {"name": "alice", "key": "JIRAUSER1", "displayName": "Alice"},
		"assignee": {"accountId": "5b10a2844c20165700ede21g", "displayName": "Bob"},
		"created": "2024-01-02T09:30:00.000+0100",
		"updated": "2024-01-03T10:00:00.000+0000",
		"resolutiondate": null,
		"customfield_10016": 5,
		"customfield_10020": null,
		"comment": {
			"total": 1,
			"comments": [
				{"id": "1", "body": "on it", "author": {"name": "bob", "displayName": "Bob"}, "updateAuthor": {"name": "carol"}}
			]
		}
	},
	"changelog": {
		"histories": [
			{"id": "7", "author": {"accountId": "abc"}, "created": "2024-01-03T10:00:00.000+0000", "items": [{"field": "status", "toString": "In Progress"}]}
		]
	}
}`

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestNormalize(t *testing.T) {
	raw := decode(t, rawIssue)
	names := map[string]string{"customfield_10016": "Story Points", "customfield_10020": "Sprint", "summary": "Summary"}

	issue, err := Normalize(raw, names)
	require.NoError(t, err)

	assert.Equal(t, models.IssueSchemaVersion, issue.SchemaVersion)
	assert.Equal(t, "PROJ-12", issue.Key)
	assert.Equal(t, "Fix the login page", issue.Summary)
	assert.Equal(t, "It is broken", issue.Description)
	assert.Equal(t, "In Progress", issue.Status)
	assert.Equal(t, "indeterminate", issue.StatusCategory)
	assert.Equal(t, "alice", issue.Reporter)
	assert.Equal(t, "5b10a2844c20165700ede21g", issue.Assignee)
	assert.True(t, issue.Created.Equal(time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)))
	assert.True(t, issue.Updated.Equal(time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, issue.ResolutionDate)

	require.Len(t, issue.Comments, 1)
	assert.Equal(t, "bob", issue.Comments[0]["author"])
	assert.Equal(t, "carol", issue.Comments[0]["updateAuthor"])
	assert.Equal(t, "on it", issue.Comments[0]["body"])

	require.Len(t, issue.Changelog, 1)
	assert.Equal(t, "abc", issue.Changelog[0]["author"])

	// Snapshot: nulls dropped, fields renamed, authors collapsed.
	_, hasRendered := issue.Raw["renderedFields"]
	assert.False(t, hasRendered)
	fields := issue.Raw["fields"].(map[string]any)
	assert.Equal(t, float64(5), fields["Story Points"])
	assert.Equal(t, "Fix the login page", fields["Summary"])
	assert.NotContains(t, fields, "customfield_10016")
	assert.NotContains(t, fields, "Sprint", "null fields are dropped before renaming")
	assert.NotContains(t, fields, "resolutiondate")
	comments := fields["comment"].(map[string]any)["comments"].([]any)
	assert.Equal(t, "bob", comments[0].(map[string]any)["author"])
	histories := issue.Raw["changelog"].(map[string]any)["histories"].([]any)
	assert.Equal(t, "abc", histories[0].(map[string]any)["author"])

	// Input untouched.
	rawComments := raw["fields"].(map[string]any)["comment"].(map[string]any)["comments"].([]any)
	assert.IsType(t, map[string]any{}, rawComments[0].(map[string]any)["author"])
	assert.Contains(t, raw["fields"].(map[string]any), "customfield_10016")
}

func TestNormalizeUsesPayloadNamesTable(t *testing.T) {
	raw := decode(t, `{
		"key": "PROJ-1",
		"names": {"customfield_1": "Team"},
		"fields": {"created": "2024-01-01T00:00:00.000+0000", "customfield_1": "core", "customfield_2": "x"}
	}`)

	issue, err := Normalize(raw, map[string]string{"customfield_2": "Ignored"})
	require.NoError(t, err)

	assert.NotContains(t, issue.Raw, "names")
	fields := issue.Raw["fields"].(map[string]any)
	assert.Equal(t, "core", fields["Team"])
	assert.Equal(t, "x", fields["customfield_2"])
}

func TestNormalizeDuplicateDisplayNames(t *testing.T) {
	payload := `{
		"key": "PROJ-1",
		"fields": {
			"created": "2024-01-01T00:00:00.000+0000",
			"customfield_1": "sprintA",
			"customfield_2": "sprintB",
			"customfield_3": 3,
			"customfield_4": "old",
			"Points": "kept"
		}
	}`
	names := map[string]string{
		"customfield_1": "Sprint",
		"customfield_2": "Sprint",
		"customfield_3": "Points",
		"customfield_4": "customfield_1",
	}
	expected := map[string]any{
		"created":       "2024-01-01T00:00:00.000+0000",
		"Sprint":        "sprintA",
		"customfield_2": "sprintB",
		"Points":        "kept",
		"customfield_3": float64(3),
		"customfield_1": "old",
	}

	for i := 0; i < 50; i++ {
		issue, err := Normalize(decode(t, payload), names)
		require.NoError(t, err)
		require.Equal(t, expected, issue.Raw["fields"], "run %d", i)
	}
}

func TestNormalizeDoneIssue(t *testing.T) {
	raw := decode(t, `{
		"key": "PROJ-3",
		"fields": {
			"status": {"name": "Closed", "statusCategory": {"name": "Done"}},
			"created": "2024-01-01T00:00:00.000+0000",
			"resolutiondate": "2024-01-04T16:00:00.000-0500",
			"changelog": {"histories": [{"author": {"key": "JIRAUSER9"}}]}
		}
	}`)

	issue, err := Normalize(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", issue.StatusCategory)
	require.NotNil(t, issue.ResolutionDate)
	assert.True(t, issue.ResolutionDate.Equal(time.Date(2024, 1, 4, 21, 0, 0, 0, time.UTC)))
	require.Len(t, issue.Changelog, 1)
	assert.Equal(t, "JIRAUSER9", issue.Changelog[0]["author"])
	assert.Empty(t, issue.Assignee)
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		errorContains string
	}{
		{
			name:          "Missing key",
			payload:       `{"fields": {"created": "2024-01-01T00:00:00.000+0000"}}`,
			errorContains: "no key",
		},
		{
			name:          "Missing created",
			payload:       `{"key": "P-1", "fields": {}}`,
			errorContains: "missing created",
		},
		{
			name:          "Malformed updated",
			payload:       `{"key": "P-1", "fields": {"created": "2024-01-01T00:00:00.000+0000", "updated": "yesterday"}}`,
			errorContains: "invalid updated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(decode(t, tt.payload), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}
