// internal/index/client_test.go
package index

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-index-sync/internal/model"
)

// setupTestClient points a Client at a fake OpenSearch server.
func setupTestClient(t *testing.T, handler http.Handler) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := NewClient(ConnInfo{Scheme: "http", Host: host, Port: port}, logger)
	require.NoError(t, err)
	client.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return client
}

// readBody returns the request body, decompressing it when gzip encoded.
func readBody(t *testing.T, r *http.Request) []byte {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return nil
		}
		defer gz.Close()
		reader = gz
	}
	b, err := io.ReadAll(reader)
	assert.NoError(t, err)
	return b
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}

func searchResponse(total int, sources ...string) string {
	hits := make([]string, 0, len(sources))
	for i, src := range sources {
		hits = append(hits, fmt.Sprintf(`{"_index": "idx", "_id": "%d", "_source": %s}`, i, src))
	}
	return fmt.Sprintf(`{"took": 1, "timed_out": false, "_shards": {"total": 1, "successful": 1, "skipped": 0, "failed": 0},
		"hits": {"total": {"value": %d, "relation": "eq"}, "hits": [%s]}}`, total, strings.Join(hits, ","))
}

func TestClient_LatestCheckpoint(t *testing.T) {
	key := model.CheckpointKey{Type: model.SyncCommits, Owner: "octo", Repo: "hello"}

	t.Run("returns the top hit", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/check_sync_data/_search", r.URL.Path)

			var q map[string]any
			if !assert.NoError(t, json.Unmarshal(readBody(t, r), &q)) {
				return
			}
			assert.EqualValues(t, 1, q["size"])
			musts := q["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
			assert.Len(t, musts, 3)
			first := musts[0].(map[string]any)["term"].(map[string]any)["search_key.type.keyword"].(map[string]any)
			assert.Equal(t, "github_commits", first["value"])
			sort := q["sort"].([]any)[0].(map[string]any)["search_key.update_timestamp"].(map[string]any)
			assert.Equal(t, "desc", sort["order"])

			writeJSON(w, searchResponse(1, `{
				"search_key": {"type": "github_commits", "owner": "octo", "repo": "hello", "update_timestamp": 1714564800},
				"github": {"type": "github_commits", "owner": "octo", "repo": "hello",
					"commits": {"sync_timestamp": 1714564800, "sync_since_timestamp": 1714176000, "sync_until_timestamp": 1714521600}}
			}`))
		})
		client := setupTestClient(t, handler)

		cp, found, err := client.LatestCheckpoint(context.Background(), key)

		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, time.Unix(1714521600, 0).UTC(), cp.Watermark())
		assert.Equal(t, time.Unix(1714176000, 0).UTC(), cp.SyncSince)
		assert.Equal(t, key, cp.Key)
	})

	t.Run("reports not found on zero hits", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, searchResponse(0))
		})
		client := setupTestClient(t, handler)

		_, found, err := client.LatestCheckpoint(context.Background(), key)

		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("missing checkpoint index means no checkpoint", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": {"root_cause": [{"type": "index_not_found_exception", "reason": "no such index [check_sync_data]"}],
				"type": "index_not_found_exception", "reason": "no such index [check_sync_data]"}, "status": 404}`)
		})
		client := setupTestClient(t, handler)

		_, found, err := client.LatestCheckpoint(context.Background(), key)

		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("rejects a checkpoint without the expected section", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, searchResponse(1, `{"search_key": {}, "github": {"issues": {"sync_timestamp": 1}}}`))
		})
		client := setupTestClient(t, handler)

		_, _, err := client.LatestCheckpoint(context.Background(), key)

		assert.Error(t, err)
	})
}

func TestClient_PutCheckpoint(t *testing.T) {
	var gotPath, gotMethod string
	var gotDoc checkpointDoc
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		assert.NoError(t, json.Unmarshal(readBody(t, r), &gotDoc))
		writeJSON(w, `{"_index": "check_sync_data", "_id": "x", "_version": 1, "result": "created",
			"_shards": {"total": 1, "successful": 1, "failed": 0}, "_seq_no": 0, "_primary_term": 1}`)
	})
	client := setupTestClient(t, handler)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := client.PutCheckpoint(context.Background(), model.Checkpoint{
		Key:       model.CheckpointKey{Type: model.SyncIssues, Owner: "octo", Repo: "hello"},
		UpdatedAt: now,
		SyncedAt:  now,
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, strings.HasPrefix(gotPath, "/check_sync_data/_doc/"), gotPath)
	assert.Contains(t, gotPath, "github_issues")
	require.NotNil(t, gotDoc.Github.Issues)
	assert.Nil(t, gotDoc.Github.Commits)
	assert.Equal(t, float64(now.Unix()), gotDoc.Github.Issues.SyncTimestamp)
	assert.Equal(t, "2024-05-01T12:00:00Z", gotDoc.Github.Issues.SyncDatetime)
	assert.Equal(t, "hello", gotDoc.SearchKey.Repo)
}

func TestClient_BulkIndex(t *testing.T) {
	var calls int32
	var lines []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/_bulk", r.URL.Path)
		lines = strings.Split(strings.TrimSpace(string(readBody(t, r))), "\n")
		writeJSON(w, `{"took": 1, "errors": false, "items": []}`)
	})
	client := setupTestClient(t, handler)

	docs := []model.Document{
		{SearchKey: model.SearchKey{Owner: "octo", Repo: "hello"}, RawData: json.RawMessage(`{"sha": "a"}`)},
		{SearchKey: model.SearchKey{Owner: "octo", Repo: "hello"}, RawData: json.RawMessage(`{"sha": "b"}`)},
	}
	require.NoError(t, client.BulkIndex(context.Background(), IndexCommits, docs))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index": {"_index": "github_commits"}}`, lines[0])
	assert.JSONEq(t, `{"search_key": {"owner": "octo", "repo": "hello", "updated_at": 0}, "raw_data": {"sha": "b"}}`, lines[3])

	t.Run("empty page issues no request", func(t *testing.T) {
		require.NoError(t, client.BulkIndex(context.Background(), IndexCommits, nil))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestClient_Scan(t *testing.T) {
	var scrollCalls, deleteCalls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/_search/scroll"):
			atomic.AddInt32(&deleteCalls, 1)
			writeJSON(w, `{"succeeded": true, "num_freed": 1}`)
		case strings.HasPrefix(r.URL.Path, "/_search/scroll"):
			n := atomic.AddInt32(&scrollCalls, 1)
			if n == 1 {
				writeJSON(w, `{"_scroll_id": "s2", "took": 1, "hits": {"total": {"value": 3, "relation": "eq"},
					"hits": [{"_index": "github_commits", "_id": "3", "_source": {"raw_data": {"n": 3}}}]}}`)
				return
			}
			writeJSON(w, `{"_scroll_id": "s2", "took": 1, "hits": {"total": {"value": 3, "relation": "eq"}, "hits": []}}`)
		case r.URL.Path == "/github_commits/_search":
			assert.NotEmpty(t, r.URL.Query().Get("scroll"))
			writeJSON(w, `{"_scroll_id": "s1", "took": 1, "hits": {"total": {"value": 3, "relation": "eq"}, "hits": [
				{"_index": "github_commits", "_id": "1", "_source": {"raw_data": {"n": 1}}},
				{"_index": "github_commits", "_id": "2", "_source": {"raw_data": {"n": 2}}}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client := setupTestClient(t, handler)

	var seen []int
	err := client.Scan(context.Background(), IndexCommits, "octo", "hello", func(raw json.RawMessage) error {
		var v struct {
			N int `json:"n"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		seen = append(seen, v.N)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&scrollCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&deleteCalls))

	t.Run("callback error stops the scan", func(t *testing.T) {
		stop := errors.New("stop")
		err := client.Scan(context.Background(), IndexCommits, "octo", "hello", func(json.RawMessage) error {
			return stop
		})
		assert.ErrorIs(t, err, stop)
	})

	t.Run("cancelled scan still clears the scroll", func(t *testing.T) {
		before := atomic.LoadInt32(&deleteCalls)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		err := client.Scan(ctx, IndexCommits, "octo", "hello", func(json.RawMessage) error {
			cancel()
			return ctx.Err()
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, before+1, atomic.LoadInt32(&deleteCalls))
	})
}

func TestClient_Profiles(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/github_profile/_search":
			var q map[string]any
			if !assert.NoError(t, json.Unmarshal(readBody(t, r), &q)) {
				return
			}
			id := q["query"].(map[string]any)["term"].(map[string]any)["raw_data.id"].(map[string]any)["value"]
			if id == float64(1) {
				writeJSON(w, searchResponse(1))
				return
			}
			writeJSON(w, searchResponse(0))
		case strings.HasPrefix(r.URL.Path, "/github_profile/_doc/"):
			assert.Equal(t, "/github_profile/_doc/2", r.URL.Path)
			var doc model.Document
			assert.NoError(t, json.Unmarshal(readBody(t, r), &doc))
			assert.JSONEq(t, `{"id": 2}`, string(doc.RawData))
			writeJSON(w, `{"_index": "github_profile", "_id": "2", "_version": 1, "result": "created",
				"_shards": {"total": 1, "successful": 1, "failed": 0}, "_seq_no": 0, "_primary_term": 1}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client := setupTestClient(t, handler)
	ctx := context.Background()

	exists, err := client.ProfileExists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ProfileExists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.IndexProfile(ctx, 2, json.RawMessage(`{"id": 2}`)))
}

func TestEpochRoundTrip(t *testing.T) {
	ts := time.Date(2023, 7, 9, 0, 0, 0, 250*int(time.Millisecond), time.UTC)
	assert.Equal(t, ts, fromEpoch(toEpoch(ts)))
	assert.Equal(t, float64(0), toEpoch(time.Time{}))
}

func TestConnInfo_Address(t *testing.T) {
	assert.Equal(t, "https://search.local:9200", ConnInfo{Host: "search.local", Port: 9200}.Address())
	assert.Equal(t, "http://127.0.0.1:9201", ConnInfo{Scheme: "http", Host: "127.0.0.1", Port: 9201}.Address())
}
