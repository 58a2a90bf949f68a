package jira

import (
	"context"
	"fmt"

	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

// DefaultPageSize is the number of issues requested per search page.
const DefaultPageSize = 50

// PageSource runs a single page of a JQL search.
type PageSource interface {
	SearchPage(ctx context.Context, jql string, startAt, maxResults int) (Page, error)
}

// Fetcher pages through a search and normalizes every result.
type Fetcher struct {
	source   PageSource
	pageSize int
}

// NewFetcher creates a Fetcher. A non-positive pageSize selects DefaultPageSize.
func NewFetcher(source PageSource, pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fetcher{source: source, pageSize: pageSize}
}

// Search fetches every issue matching jql. Pages are requested from offset 0
// until the offset reaches the total reported by the first page, and never
// more than ceil(total/pageSize) times.
func (f *Fetcher) Search(ctx context.Context, jql string) ([]models.Issue, error) {
	logging.Info("searching for tickets", "jql", jql)

	var (
		issues   []models.Issue
		offset   int
		maxPages = -1
	)

	for page := 1; maxPages < 0 || page <= maxPages; page++ {
		result, err := f.source.SearchPage(ctx, jql, offset, f.pageSize)
		if err != nil {
			if !IsFetchError(err) {
				err = &FetchError{Op: "search", Err: err}
			}
			return nil, err
		}

		if maxPages < 0 {
			maxPages = (result.Total + f.pageSize - 1) / f.pageSize
		}

		logging.Debug("fetched search page",
			"page", page,
			"count", len(result.Issues),
			"total", result.Total)

		if len(result.Issues) == 0 && offset < result.Total {
			return nil, fmt.Errorf("%w: page %d at offset %d was empty but %d matches were reported",
				ErrProtocolInconsistency, page, offset, result.Total)
		}

		for _, raw := range result.Issues {
			issue, err := Normalize(raw, result.Names)
			if err != nil {
				return nil, fmt.Errorf("failed to normalize search result: %w", err)
			}
			issues = append(issues, issue)
		}

		offset += f.pageSize
		if offset >= result.Total {
			break
		}
	}

	logging.Info("found tickets", "count", len(issues))
	return issues, nil
}
