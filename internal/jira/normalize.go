package jira

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/danielolaszy/jiradigest/pkg/models"
)

// errMissingKey is returned by Normalize for payloads without an issue key.
var errMissingKey = errors.New("issue payload has no key")

// eventUserFields are the user objects embedded in comments and histories.
var eventUserFields = []string{"author", "updateAuthor"}

// Normalize converts a raw search result into an Issue. It drops null fields,
// collapses event authors to account identifiers, renames raw field ids using
// the names table (the payload's own "names" wins over pageNames) and removes
// the table from the snapshot. The input map is not modified.
func Normalize(raw map[string]any, pageNames map[string]string) (models.Issue, error) {
	top := dropNil(raw)
	fields := dropNil(asMap(top["fields"]))

	key, _ := top["key"].(string)
	if key == "" {
		return models.Issue{}, errMissingKey
	}

	issue := models.Issue{
		SchemaVersion: models.IssueSchemaVersion,
		Key:           key,
		Summary:       asString(fields["summary"]),
		Description:   asString(fields["description"]),
		Reporter:      userID(fields["reporter"]),
		Assignee:      userID(fields["assignee"]),
	}

	status := asMap(fields["status"])
	issue.Status = asString(status["name"])
	category := asMap(status["statusCategory"])
	issue.StatusCategory = strings.ToLower(firstNonEmpty(asString(category["key"]), asString(category["name"])))

	var err error
	if issue.Created, err = parseField(fields, "created"); err != nil {
		return models.Issue{}, fmt.Errorf("%s: %w", key, err)
	}
	if issue.Created.IsZero() {
		return models.Issue{}, fmt.Errorf("%s: missing created date", key)
	}
	if issue.Updated, err = parseField(fields, "updated"); err != nil {
		return models.Issue{}, fmt.Errorf("%s: %w", key, err)
	}
	resolved, err := parseField(fields, "resolutiondate")
	if err != nil {
		return models.Issue{}, fmt.Errorf("%s: %w", key, err)
	}
	if !resolved.IsZero() {
		issue.ResolutionDate = &resolved
	}

	if comment := asMap(fields["comment"]); comment != nil {
		comment = copyMap(comment)
		issue.Comments = collapseEvents(comment["comments"])
		comment["comments"] = toAnySlice(issue.Comments)
		fields["comment"] = comment
	}

	// Histories normally sit at the top level; some servers nest them in fields.
	for _, holder := range []map[string]any{top, fields} {
		changelog := asMap(holder["changelog"])
		if changelog == nil {
			continue
		}
		changelog = copyMap(changelog)
		issue.Changelog = collapseEvents(changelog["histories"])
		changelog["histories"] = toAnySlice(issue.Changelog)
		holder["changelog"] = changelog
		break
	}

	names := pageNames
	if own, ok := top["names"]; ok {
		names = stringMap(own)
		delete(top, "names")
	}
	fields = renameFields(fields, names)

	if _, ok := top["fields"]; ok {
		top["fields"] = fields
	}
	issue.Raw = top
	return issue, nil
}

// userID collapses a Jira user object to its stable identifier.
// renameFields returns fields keyed by display name. Ids are visited in sorted
// order; an id whose display name is already taken keeps its own id, or
// "<display> (<id>)" when that is taken too, so no value is ever dropped.
func renameFields(fields map[string]any, names map[string]string) map[string]any {
	if len(names) == 0 {
		return fields
	}
	renamed := func(id string) bool {
		display := names[id]
		return display != "" && display != id
	}

	ids := slices.Sorted(maps.Keys(fields))
	out := make(map[string]any, len(fields))
	for _, id := range ids {
		if !renamed(id) {
			out[id] = fields[id]
		}
	}
	for _, id := range ids {
		if !renamed(id) {
			continue
		}
		target := names[id]
		if _, taken := out[target]; taken {
			target = id
			if _, taken := out[target]; taken {
				target = fmt.Sprintf("%s (%s)", names[id], id)
			}
		}
		out[target] = fields[id]
	}
	return out
}

func userID(v any) string {
	switch u := v.(type) {
	case string:
		return u
	case map[string]any:
		return firstNonEmpty(asString(u["accountId"]), asString(u["name"]), asString(u["key"]))
	}
	return ""
}

func collapseEvents(v any) []map[string]any {
	list, _ := v.([]any)
	events := make([]map[string]any, 0, len(list))
	for _, item := range list {
		event := asMap(item)
		if event == nil {
			continue
		}
		event = copyMap(event)
		for _, f := range eventUserFields {
			if u, ok := event[f]; ok {
				event[f] = userID(u)
			}
		}
		events = append(events, event)
	}
	return events
}

func parseField(fields map[string]any, name string) (time.Time, error) {
	s := asString(fields[name])
	if s == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return t, nil
}

func dropNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func stringMap(v any) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, s := range m {
			out[k] = s
		}
	case map[string]any:
		for k, s := range m {
			if str, ok := s.(string); ok {
				out[k] = str
			}
		}
	}
	return out
}

func toAnySlice(events []map[string]any) []any {
	out := make([]any, len(events))
	for i, e := range events {
		out[i] = e
	}
	return out
}
