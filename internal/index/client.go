// internal/index/client.go

// Package index stores synced GitHub data and sync checkpoints in OpenSearch.
package index

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
)

// Index names shared with the rest of the data platform.
const (
	IndexCommits        = "github_commits"
	IndexIssues         = "github_issues"
	IndexIssuesTimeline = "github_issues_timeline"
	IndexProfiles       = "github_profile"
	IndexCheckSyncData  = "check_sync_data"
)

// ConnInfo is the index store connection supplied by the caller.
type ConnInfo struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
	// Insecure skips TLS certificate verification.
	Insecure bool
}

// Address renders the store URL.
func (c ConnInfo) Address() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// Client is a wrapper around the OpenSearch API client.
type Client struct {
	os     *opensearchapi.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient connects to the store described by conn.
func NewClient(conn ConnInfo, logger *slog.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: conn.Insecure} //nolint:gosec // self-signed cluster certs

	osClient, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:           []string{conn.Address()},
			Username:            conn.User,
			Password:            conn.Password,
			Transport:           transport,
			CompressRequestBody: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Client{
		os:     osClient,
		logger: logger,
		now:    time.Now,
	}, nil
}

// isIndexNotFound reports whether err is the store's answer for a missing index.
func isIndexNotFound(err error) bool {
	var se *opensearch.StructError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
