package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/jiradigest/internal/config"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		Jira: config.JiraConfig{
			URL:      url,
			Token:    "secret-token",
			Owner:    "currentUser()",
			PageSize: 2,
		},
	}
}

// newJiraServer serves /myself and a three-issue search split into pages.
func newJiraServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"name": "jdoe", "key": "JIRAUSER1", "displayName": "Jane Doe", "timeZone": "Europe/Berlin"}`)
	})

	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "assignee = currentUser()", q.Get("jql"))
		assert.Equal(t, "names,changelog", q.Get("expand"))
		assert.Equal(t, "*all", q.Get("fields"))
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		startAt, _ := strconv.Atoi(q.Get("startAt"))
		var issues string
		switch startAt {
		case 0:
			issues = `{"key": "P-1", "fields": {"created": "2024-01-01T00:00:00.000+0000", "customfield_1": 3}},
				{"key": "P-2", "fields": {"created": "2024-01-02T00:00:00.000+0000"}}`
		case 2:
			issues = `{"key": "P-3", "fields": {"created": "2024-01-03T00:00:00.000+0000"}}`
		}
		fmt.Fprintf(w, `{"startAt": %d, "maxResults": %s, "total": 3, "names": {"customfield_1": "Story Points"}, "issues": [%s]}`,
			startAt, q.Get("maxResults"), issues)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCurrentUser(t *testing.T) {
	srv := newJiraServer(t)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.ID)
	assert.Equal(t, "Jane Doe", user.DisplayName)
	assert.Equal(t, "Europe/Berlin", user.TimeZone)
}

func TestCurrentUserUnauthorized(t *testing.T) {
	srv := newJiraServer(t)
	cfg := testConfig(srv.URL)
	cfg.Jira.Token = "wrong"

	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.CurrentUser(context.Background())
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
	assert.Equal(t, "myself", fe.Op)
}

func TestSearchThroughClient(t *testing.T) {
	srv := newJiraServer(t)
	cfg := testConfig(srv.URL)

	client, err := NewClient(cfg)
	require.NoError(t, err)

	issues, err := NewFetcher(client, cfg.Jira.PageSize).Search(context.Background(), "assignee = currentUser()")
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "P-1", issues[0].Key)
	assert.Equal(t, "P-3", issues[2].Key)

	fields := issues[0].Raw["fields"].(map[string]any)
	assert.Equal(t, float64(3), fields["Story Points"])
}

func TestBasicAuthWhenUsernameConfigured(t *testing.T) {
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		fmt.Fprint(w, `{"accountId": "abc123", "displayName": "Jane", "timeZone": "UTC"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Jira.Username = "jane@example.com"

	client, err := NewClient(cfg)
	require.NoError(t, err)

	user, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", user.ID)
	assert.Equal(t, "jane@example.com", gotUser)
	assert.Equal(t, "secret-token", gotPass)
}

func TestSearchPageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.SearchPage(context.Background(), "jql", 0, 50)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
}

func TestNewClientValidation(t *testing.T) {
	testCases := []struct {
		name          string
		url           string
		token         string
		errorContains string
	}{
		{name: "Missing URL", url: "", token: "t", errorContains: "JiraServer"},
		{name: "Missing token", url: "https://jira.example.com", token: "", errorContains: "JiraAuthToken"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(tc.url)
			cfg.Jira.Token = tc.token
			_, err := NewClient(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfig)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}

func TestClientNotInitialized(t *testing.T) {
	client := &Client{}
	_, err := client.SearchPage(context.Background(), "jql", 0, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}
