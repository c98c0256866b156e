// internal/syncer/issues.go
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github-index-sync/internal/index"
	"github-index-sync/internal/model"
)

// SyncIssues indexes issues updated since the last checkpoint and returns the
// numbers of every issue it saw, for the comment and timeline fetchers.
func (s *Syncer) SyncIssues(ctx context.Context, owner, repo string) ([]int, error) {
	var numbers []int
	_, err := s.recordRun(ctx, model.SyncIssues, owner, repo, func() (pageStats, error) {
		var stats pageStats
		var err error
		numbers, stats, err = s.syncIssues(ctx, owner, repo)
		return stats, err
	})
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func (s *Syncer) syncIssues(ctx context.Context, owner, repo string) ([]int, pageStats, error) {
	logger := s.logger.With("owner", owner, "repo", repo, "sync_type", model.SyncIssues)
	logger.Debug("Sync state", "state", stateInit)

	key := model.CheckpointKey{Type: model.SyncIssues, Owner: owner, Repo: repo}
	cp, err := s.loadCheckpoint(ctx, key)
	if err != nil {
		return nil, pageStats{}, err
	}

	startedAt := s.now()
	since := startOfDay(cp.Watermark())
	logger.Info("Syncing issues", "since", since.Format(time.RFC3339))

	numbers := []int{}
	collect := func(items []json.RawMessage) error {
		for _, item := range items {
			var issue struct {
				Number int `json:"number"`
			}
			if err := json.Unmarshal(item, &issue); err != nil {
				return fmt.Errorf("failed to decode issue: %w", err)
			}
			numbers = append(numbers, issue.Number)
		}
		return nil
	}
	fetch := func(ctx context.Context, page int) ([]json.RawMessage, bool, error) {
		return s.source.ListIssuesPage(ctx, owner, repo, page, since)
	}

	stats, err := s.paginate(ctx, logger, index.IndexIssues, owner, repo, s.issuesMaxPages, s.issuesDelay, fetch, collect)
	if err != nil {
		return nil, stats, err
	}

	err = s.store.PutCheckpoint(ctx, model.Checkpoint{
		Key:       key,
		UpdatedAt: s.now(),
		SyncedAt:  startedAt,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to advance issues checkpoint: %w", err)
	}
	logger.Debug("Sync state", "state", stateCheckpointWritten)
	logger.Info("Issues sync finished", "pages", stats.pages, "documents", stats.documents, "issues", len(numbers))
	logger.Debug("Sync state", "state", stateEnd)
	return numbers, stats, nil
}
