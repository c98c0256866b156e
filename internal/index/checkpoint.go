// internal/index/checkpoint.go
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github-index-sync/internal/model"
)

const datetimeLayout = "2006-01-02T15:04:05Z"

// checkpointDoc is the stored shape of a sync checkpoint.
type checkpointDoc struct {
	SearchKey checkpointSearchKey `json:"search_key"`
	Github    checkpointGithub    `json:"github"`
}

type checkpointSearchKey struct {
	Type            string  `json:"type"`
	Owner           string  `json:"owner"`
	Repo            string  `json:"repo"`
	UpdateTime      string  `json:"update_time"`
	UpdateTimestamp float64 `json:"update_timestamp"`
}

type checkpointGithub struct {
	Type    string             `json:"type"`
	Owner   string             `json:"owner"`
	Repo    string             `json:"repo"`
	Commits *commitsCheckpoint `json:"commits,omitempty"`
	Issues  *issuesCheckpoint  `json:"issues,omitempty"`
}

type commitsCheckpoint struct {
	SyncTimestamp      float64 `json:"sync_timestamp"`
	SyncSinceTimestamp float64 `json:"sync_since_timestamp"`
	SyncUntilTimestamp float64 `json:"sync_until_timestamp"`
	SyncSinceDatetime  string  `json:"sync_since_datetime"`
	SyncUntilDatetime  string  `json:"sync_until_datetime"`
}

type issuesCheckpoint struct {
	SyncTimestamp float64 `json:"sync_timestamp"`
	SyncDatetime  string  `json:"sync_datetime"`
}

// LatestCheckpoint returns the checkpoint with the highest update timestamp for key.
// found is false when no checkpoint exists.
func (c *Client) LatestCheckpoint(ctx context.Context, key model.CheckpointKey) (model.Checkpoint, bool, error) {
	body, err := encode(latestCheckpointQuery(string(key.Type), key.Owner, key.Repo))
	if err != nil {
		return model.Checkpoint{}, false, err
	}

	resp, err := c.os.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{IndexCheckSyncData},
		Body:    body,
	})
	if isIndexNotFound(err) {
		return model.Checkpoint{}, false, nil
	}
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	if len(resp.Hits.Hits) == 0 {
		return model.Checkpoint{}, false, nil
	}

	var doc checkpointDoc
	if err := json.Unmarshal(resp.Hits.Hits[0].Source, &doc); err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	cp, err := fromCheckpointDoc(key, doc)
	if err != nil {
		return model.Checkpoint{}, false, err
	}
	return cp, true, nil
}

// PutCheckpoint overwrites the single checkpoint document for cp.Key.
func (c *Client) PutCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	doc, err := toCheckpointDoc(cp)
	if err != nil {
		return err
	}
	body, err := encode(doc)
	if err != nil {
		return err
	}

	_, err = c.os.Index(ctx, opensearchapi.IndexReq{
		Index:      IndexCheckSyncData,
		DocumentID: checkpointID(cp.Key),
		Body:       body,
		Params:     opensearchapi.IndexParams{Refresh: "true"},
	})
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func checkpointID(key model.CheckpointKey) string {
	return fmt.Sprintf("%s::%s::%s", key.Type, key.Owner, key.Repo)
}

func toCheckpointDoc(cp model.Checkpoint) (checkpointDoc, error) {
	doc := checkpointDoc{
		SearchKey: checkpointSearchKey{
			Type:            string(cp.Key.Type),
			Owner:           cp.Key.Owner,
			Repo:            cp.Key.Repo,
			UpdateTime:      cp.UpdatedAt.UTC().Format(datetimeLayout),
			UpdateTimestamp: toEpoch(cp.UpdatedAt),
		},
		Github: checkpointGithub{
			Type:  string(cp.Key.Type),
			Owner: cp.Key.Owner,
			Repo:  cp.Key.Repo,
		},
	}

	switch cp.Key.Type {
	case model.SyncCommits:
		doc.Github.Commits = &commitsCheckpoint{
			SyncTimestamp:      toEpoch(cp.SyncedAt),
			SyncSinceTimestamp: toEpoch(cp.SyncSince),
			SyncUntilTimestamp: toEpoch(cp.SyncUntil),
			SyncSinceDatetime:  cp.SyncSince.UTC().Format(datetimeLayout),
			SyncUntilDatetime:  cp.SyncUntil.UTC().Format(datetimeLayout),
		}
	case model.SyncIssues:
		doc.Github.Issues = &issuesCheckpoint{
			SyncTimestamp: toEpoch(cp.SyncedAt),
			SyncDatetime:  cp.SyncedAt.UTC().Format(datetimeLayout),
		}
	default:
		return checkpointDoc{}, fmt.Errorf("unsupported checkpoint type %q", cp.Key.Type)
	}
	return doc, nil
}

func fromCheckpointDoc(key model.CheckpointKey, doc checkpointDoc) (model.Checkpoint, error) {
	cp := model.Checkpoint{
		Key:       key,
		UpdatedAt: fromEpoch(doc.SearchKey.UpdateTimestamp),
	}

	switch key.Type {
	case model.SyncCommits:
		if doc.Github.Commits == nil {
			return model.Checkpoint{}, fmt.Errorf("checkpoint for %s/%s has no commits section", key.Owner, key.Repo)
		}
		cp.SyncedAt = fromEpoch(doc.Github.Commits.SyncTimestamp)
		cp.SyncSince = fromEpoch(doc.Github.Commits.SyncSinceTimestamp)
		cp.SyncUntil = fromEpoch(doc.Github.Commits.SyncUntilTimestamp)
	case model.SyncIssues:
		if doc.Github.Issues == nil {
			return model.Checkpoint{}, fmt.Errorf("checkpoint for %s/%s has no issues section", key.Owner, key.Repo)
		}
		cp.SyncedAt = fromEpoch(doc.Github.Issues.SyncTimestamp)
	default:
		return model.Checkpoint{}, fmt.Errorf("unsupported checkpoint type %q", key.Type)
	}
	return cp, nil
}

// toEpoch renders t as epoch seconds with millisecond precision.
func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli()) / 1000
}

func fromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*1000))*int64(time.Millisecond)).UTC()
}
