// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github-index-sync/internal/model"
)

const (
	perPage = 100

	// timeLayout is the window format the REST API expects for since/until.
	timeLayout = "2006-01-02T15:04:05Z"
)

// Client is a wrapper around a pool of go-github clients, one per credential.
// Page n of a listing uses credential (n-1) mod C, so every run starts the
// rotation at the first credential. Profile lookups rotate on a shared counter.
type Client struct {
	pool   []*github.Client
	next   atomic.Uint64
	logger *slog.Logger
}

// NewClient creates one authenticated go-github client per token.
// An empty baseURL targets the public GitHub API.
func NewClient(tokens []string, baseURL string, logger *slog.Logger) (*Client, error) {
	if len(tokens) == 0 {
		return nil, errors.New("at least one GitHub token is required")
	}

	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", baseURL, err)
		}
		base = u
	}

	ctx := context.Background()
	pool := make([]*github.Client, 0, len(tokens))
	for _, token := range tokens {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		gh := github.NewClient(oauth2.NewClient(ctx, ts))
		if base != nil {
			gh.BaseURL = base
		}
		pool = append(pool, gh)
	}

	return &Client{
		pool:   pool,
		logger: logger,
	}, nil
}

// Size returns the number of credentials in the pool.
func (c *Client) Size() int {
	return len(c.pool)
}

// nextClient returns pool[i mod C] for the i-th profile request (0-indexed).
func (c *Client) nextClient() *github.Client {
	i := c.next.Add(1) - 1
	return c.pool[i%uint64(len(c.pool))]
}

// pageClient returns the client for page n (1-indexed) of a listing.
func (c *Client) pageClient(page int) *github.Client {
	return c.pool[(page-1)%len(c.pool)]
}

// ListCommitsPage fetches one page of commits in the given window.
// more is false once the API returns an empty page.
func (c *Client) ListCommitsPage(ctx context.Context, owner, repo string, page int, window model.TimeWindow) ([]json.RawMessage, bool, error) {
	q := url.Values{}
	q.Set("since", formatTime(window.Since))
	if !window.Until.IsZero() {
		q.Set("until", formatTime(window.Until))
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	path := fmt.Sprintf("repos/%s/%s/commits", owner, repo)
	return c.getPage(ctx, page, path, q)
}

// ListIssuesPage fetches one page of issues (all states) updated since the given time.
func (c *Client) ListIssuesPage(ctx context.Context, owner, repo string, page int, since time.Time) ([]json.RawMessage, bool, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("since", formatTime(since))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	path := fmt.Sprintf("repos/%s/%s/issues", owner, repo)
	return c.getPage(ctx, page, path, q)
}

// GetUserByID fetches the raw profile of a user by numeric id.
func (c *Client) GetUserByID(ctx context.Context, id int64) (json.RawMessage, error) {
	gh := c.nextClient()
	req, err := gh.NewRequest(http.MethodGet, fmt.Sprintf("user/%d", id), nil)
	if err != nil {
		return nil, err
	}

	var profile json.RawMessage
	if _, err := gh.Do(ctx, req, &profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (c *Client) getPage(ctx context.Context, page int, path string, q url.Values) ([]json.RawMessage, bool, error) {
	if page < 1 {
		return nil, false, fmt.Errorf("invalid page %d, pages start at 1", page)
	}
	gh := c.pageClient(page)
	c.logger.Debug("Fetching page", "path", path, "page", page)

	req, err := gh.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}

	var items []json.RawMessage
	if _, err := gh.Do(ctx, req, &items); err != nil {
		return nil, false, err
	}
	return items, len(items) > 0, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
