// internal/profile/backfill.go

// Package profile backfills user profiles for everyone referenced by a
// repository's indexed commits and issue timelines.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github-index-sync/internal/index"
)

// Store reads indexed documents and stores profiles.
type Store interface {
	Scan(ctx context.Context, index, owner, repo string, fn func(raw json.RawMessage) error) error
	ProfileExists(ctx context.Context, id int64) (bool, error)
	IndexProfile(ctx context.Context, id int64, profile json.RawMessage) error
}

// UserSource fetches raw user profiles by id.
type UserSource interface {
	GetUserByID(ctx context.Context, id int64) (json.RawMessage, error)
}

// Result summarizes one backfill.
type Result struct {
	IDs     int `json:"ids"`
	Fetched int `json:"fetched"`
}

// Loader extracts user ids from indexed data and stores missing profiles.
type Loader struct {
	store  Store
	users  UserSource
	logger *slog.Logger
}

// NewLoader creates a new Loader.
func NewLoader(store Store, users UserSource, logger *slog.Logger) *Loader {
	return &Loader{store: store, users: users, logger: logger}
}

// Backfill loads the repository's user ids and stores every profile not yet present.
func (l *Loader) Backfill(ctx context.Context, owner, repo string) (Result, error) {
	ids, err := l.LoadIDs(ctx, owner, repo)
	if err != nil {
		return Result{}, err
	}
	fetched, err := l.LoadProfiles(ctx, ids)
	return Result{IDs: len(ids), Fetched: fetched}, err
}

// LoadIDs returns the deduplicated ids referenced by the repository's issue
// timelines and commits.
func (l *Loader) LoadIDs(ctx context.Context, owner, repo string) ([]int64, error) {
	ids := IDSet{}

	if err := l.store.Scan(ctx, index.IndexIssuesTimeline, owner, repo, ids.AddTimelineEvent); err != nil {
		return nil, fmt.Errorf("failed to scan issue timelines: %w", err)
	}
	timelineIDs := len(ids)

	if err := l.store.Scan(ctx, index.IndexCommits, owner, repo, ids.AddCommit); err != nil {
		return nil, fmt.Errorf("failed to scan commits: %w", err)
	}

	l.logger.Info("Loaded user ids", "owner", owner, "repo", repo, "from_timeline", timelineIDs, "total", len(ids))
	return ids.Sorted(), nil
}

// LoadProfiles fetches and stores the profile of every id not already indexed.
// It returns how many profiles were fetched.
func (l *Loader) LoadProfiles(ctx context.Context, ids []int64) (int, error) {
	fetched := 0
	seen := IDSet{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		exists, err := l.store.ProfileExists(ctx, id)
		if err != nil {
			return fetched, err
		}
		if exists {
			continue
		}

		profile, err := l.users.GetUserByID(ctx, id)
		if err != nil {
			return fetched, fmt.Errorf("failed to fetch profile %d: %w", id, err)
		}
		if err := l.store.IndexProfile(ctx, id, profile); err != nil {
			return fetched, err
		}
		fetched++
		l.logger.Debug("Stored profile", "id", id)
	}
	return fetched, nil
}
