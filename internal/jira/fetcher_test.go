package jira

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPageSource implements PageSource for testing.
type MockPageSource struct {
	SearchPageFunc func(jql string, startAt, maxResults int) (Page, error)
	Calls          []int
}

func (m *MockPageSource) SearchPage(_ context.Context, jql string, startAt, maxResults int) (Page, error) {
	m.Calls = append(m.Calls, startAt)
	if m.SearchPageFunc != nil {
		return m.SearchPageFunc(jql, startAt, maxResults)
	}
	return Page{}, errors.New("SearchPage not implemented")
}

func rawIssues(start, n int) []map[string]any {
	issues := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		issues = append(issues, map[string]any{
			"key": fmt.Sprintf("PROJ-%d", start+i+1),
			"fields": map[string]any{
				"created": "2024-01-01T00:00:00.000+0000",
			},
		})
	}
	return issues
}

// pagedSource serves total issues, limiting every page to pageCap entries.
func pagedSource(total, pageCap int) *MockPageSource {
	return &MockPageSource{
		SearchPageFunc: func(_ string, startAt, maxResults int) (Page, error) {
			n := min(maxResults, pageCap, max(total-startAt, 0))
			return Page{StartAt: startAt, MaxResults: maxResults, Total: total, Issues: rawIssues(startAt, n)}, nil
		},
	}
}

func TestSearchPagination(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		pageCap       int
		expectedCalls []int
		expectedCount int
	}{
		{
			name:          "Three pages for 120 results",
			total:         120,
			pageCap:       50,
			expectedCalls: []int{0, 50, 100},
			expectedCount: 120,
		},
		{
			name:          "Short pages accumulate fewer results",
			total:         120,
			pageCap:       45,
			expectedCalls: []int{0, 50, 100},
			expectedCount: 110,
		},
		{
			name:          "Exact multiple of page size",
			total:         100,
			pageCap:       50,
			expectedCalls: []int{0, 50},
			expectedCount: 100,
		},
		{
			name:          "No results still makes one request",
			total:         0,
			pageCap:       50,
			expectedCalls: []int{0},
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := pagedSource(tt.total, tt.pageCap)
			issues, err := NewFetcher(source, 50).Search(context.Background(), "assignee = currentUser()")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCalls, source.Calls)
			assert.Len(t, issues, tt.expectedCount)
		})
	}
}

func TestSearchCapsPagesAtFirstReportedTotal(t *testing.T) {
	// A server whose total keeps growing must not keep us paging forever.
	total := 120
	source := &MockPageSource{
		SearchPageFunc: func(_ string, startAt, maxResults int) (Page, error) {
			page := Page{Total: total, Issues: rawIssues(startAt, maxResults)}
			total += 100
			return page, nil
		},
	}

	issues, err := NewFetcher(source, 50).Search(context.Background(), "jql")
	require.NoError(t, err)
	assert.Len(t, source.Calls, 3)
	assert.Len(t, issues, 150)
}

func TestSearchEmptyPageBeforeTotal(t *testing.T) {
	source := &MockPageSource{
		SearchPageFunc: func(_ string, startAt, maxResults int) (Page, error) {
			if startAt == 0 {
				return Page{Total: 120, Issues: rawIssues(0, 50)}, nil
			}
			return Page{Total: 120}, nil
		},
	}

	_, err := NewFetcher(source, 50).Search(context.Background(), "jql")
	assert.ErrorIs(t, err, ErrProtocolInconsistency)
	assert.Equal(t, []int{0, 50}, source.Calls)
}

func TestSearchWrapsSourceErrors(t *testing.T) {
	source := &MockPageSource{
		SearchPageFunc: func(string, int, int) (Page, error) {
			return Page{}, errors.New("connection refused")
		},
	}

	_, err := NewFetcher(source, 0).Search(context.Background(), "jql")
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []int{0}, source.Calls)
}

func TestSearchPassesPageSize(t *testing.T) {
	var sizes []int
	source := &MockPageSource{
		SearchPageFunc: func(_ string, startAt, maxResults int) (Page, error) {
			sizes = append(sizes, maxResults)
			return Page{Total: 5, Issues: rawIssues(startAt, min(maxResults, 5-startAt))}, nil
		},
	}

	issues, err := NewFetcher(source, 2).Search(context.Background(), "jql")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, sizes)
	assert.Equal(t, []int{0, 2, 4}, source.Calls)
	require.Len(t, issues, 5)
	assert.Equal(t, "PROJ-5", issues[4].Key)
}
