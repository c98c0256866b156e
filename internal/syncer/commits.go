// internal/syncer/commits.go
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	custom_errors "github-index-sync/internal/errors"
	"github-index-sync/internal/index"
	"github-index-sync/internal/model"
)

// CommitsSyncDone is returned by a successful commits sync.
const CommitsSyncDone = "END::sync_github_commits"

// SyncCommits indexes commits made since the last checkpoint, up to today 00:00 UTC,
// then advances the checkpoint to cover that window.
func (s *Syncer) SyncCommits(ctx context.Context, owner, repo string) (string, error) {
	_, err := s.recordRun(ctx, model.SyncCommits, owner, repo, func() (pageStats, error) {
		return s.syncCommits(ctx, owner, repo)
	})
	if err != nil {
		return "", err
	}
	return CommitsSyncDone, nil
}

func (s *Syncer) syncCommits(ctx context.Context, owner, repo string) (pageStats, error) {
	logger := s.logger.With("owner", owner, "repo", repo, "sync_type", model.SyncCommits)
	logger.Debug("Sync state", "state", stateInit)

	key := model.CheckpointKey{Type: model.SyncCommits, Owner: owner, Repo: repo}
	cp, err := s.loadCheckpoint(ctx, key)
	if err != nil {
		return pageStats{}, err
	}

	startedAt := s.now()
	window := model.TimeWindow{
		Since: startOfDay(cp.Watermark()),
		Until: startOfDay(startedAt),
	}
	logger.Info("Syncing commits", "since", window.Since.Format(time.RFC3339), "until", window.Until.Format(time.RFC3339))

	fetch := func(ctx context.Context, page int) ([]json.RawMessage, bool, error) {
		return s.source.ListCommitsPage(ctx, owner, repo, page, window)
	}
	stats, err := s.paginate(ctx, logger, index.IndexCommits, owner, repo, s.commitsMaxPages, s.commitsDelay, fetch, nil)
	if err != nil {
		return stats, err
	}

	err = s.store.PutCheckpoint(ctx, model.Checkpoint{
		Key:       key,
		UpdatedAt: s.now(),
		SyncedAt:  startedAt,
		SyncSince: window.Since,
		SyncUntil: window.Until,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to advance commits checkpoint: %w", err)
	}
	logger.Debug("Sync state", "state", stateCheckpointWritten)
	logger.Info("Commits sync finished", "pages", stats.pages, "documents", stats.documents)
	logger.Debug("Sync state", "state", stateEnd)
	return stats, nil
}

// loadCheckpoint returns the latest checkpoint for key, or a
// CheckpointNotFoundError when the triple was never synced.
func (s *Syncer) loadCheckpoint(ctx context.Context, key model.CheckpointKey) (model.Checkpoint, error) {
	cp, found, err := s.store.LatestCheckpoint(ctx, key)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if !found {
		return model.Checkpoint{}, custom_errors.NewCheckpointNotFound(string(key.Type), key.Owner, key.Repo)
	}
	s.logger.Debug("Sync state", "state", stateCheckLoaded, "watermark", cp.Watermark())
	return cp, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
