// Package jira talks to the Jira REST API and turns search results into
// normalized issues.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"golang.org/x/oauth2"

	"github.com/danielolaszy/jiradigest/internal/config"
	"github.com/danielolaszy/jiradigest/internal/logging"
	"github.com/danielolaszy/jiradigest/pkg/models"
)

// searchExpand asks for the field-name table and the change history on every page.
const searchExpand = "names,changelog"

// requestTimeout bounds a single HTTP round trip to Jira.
const requestTimeout = 60 * time.Second

// Client handles interactions with the JIRA API.
type Client struct {
	client *jira.Client
}

// NewClient creates a JIRA client from configuration. A configured username
// selects basic auth with the token as password; otherwise the token is sent
// as a bearer personal access token.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}

	var httpClient *http.Client
	authMode := "bearer"
	if cfg.Jira.Username != "" {
		tp := jira.BasicAuthTransport{
			Username: cfg.Jira.Username,
			Password: cfg.Jira.Token,
		}
		httpClient = tp.Client()
		authMode = "basic"
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Jira.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = requestTimeout

	client, err := jira.NewClient(httpClient, cfg.Jira.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	logging.Info("jira configuration",
		"url", cfg.Jira.URL,
		"auth", authMode,
		"token", logging.MaskSensitive(cfg.Jira.Token))

	return &Client{client: client}, nil
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	if c.client == nil {
		return models.User{}, fmt.Errorf("JIRA client not initialized")
	}

	u, resp, err := c.client.User.GetSelfWithContext(ctx)
	if err != nil {
		return models.User{}, newFetchError("myself", resp, err)
	}

	user := models.User{
		ID:          firstNonEmpty(u.AccountID, u.Name, u.Key),
		DisplayName: firstNonEmpty(u.DisplayName, u.Name, u.AccountID),
		TimeZone:    u.TimeZone,
	}
	logging.Info("current jira user", "user", user.ID, "timezone", user.TimeZone)
	return user, nil
}

// Page is one page of raw search results.
type Page struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Issues     []map[string]any `json:"issues"`
	// Names maps raw field ids to display names (expand=names)
	Names map[string]string `json:"names,omitempty"`
}

// SearchPage runs one paged JQL search. Issues are decoded as raw maps so the
// normalizer sees every field, including custom fields.
func (c *Client) SearchPage(ctx context.Context, jql string, startAt, maxResults int) (Page, error) {
	if c.client == nil {
		return Page{}, fmt.Errorf("JIRA client not initialized")
	}

	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("fields", "*all")
	q.Set("expand", searchExpand)

	req, err := c.client.NewRequestWithContext(ctx, http.MethodGet, "rest/api/2/search?"+q.Encode(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build search request: %w", err)
	}

	var page Page
	resp, err := c.client.Do(req, &page)
	if err != nil {
		return Page{}, newFetchError("search", resp, err)
	}
	return page, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
