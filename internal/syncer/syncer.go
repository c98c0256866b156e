// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	custom_errors "github-index-sync/internal/errors"
	"github-index-sync/internal/model"
	"github-index-sync/internal/profile"
)

const (
	// Number of repositories to sync in parallel
	defaultConcurrency = 5

	defaultCommitsDelay = time.Second
	defaultIssuesMin    = 100 * time.Millisecond
	defaultIssuesMax    = 500 * time.Millisecond
)

// Store is the index store as seen by a sync run.
type Store interface {
	LatestCheckpoint(ctx context.Context, key model.CheckpointKey) (model.Checkpoint, bool, error)
	PutCheckpoint(ctx context.Context, cp model.Checkpoint) error
	BulkIndex(ctx context.Context, index string, docs []model.Document) error
}

// Source serves paginated raw items from the REST API.
type Source interface {
	ListCommitsPage(ctx context.Context, owner, repo string, page int, window model.TimeWindow) ([]json.RawMessage, bool, error)
	ListIssuesPage(ctx context.Context, owner, repo string, page int, since time.Time) ([]json.RawMessage, bool, error)
}

// ProfileBackfiller stores profiles for every user referenced by a repository.
type ProfileBackfiller interface {
	Backfill(ctx context.Context, owner, repo string) (profile.Result, error)
}

// Recorder keeps a ledger of finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run model.Run) error
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

// Options tunes a Syncer. Zero values fall back to defaults.
type Options struct {
	Repos        []string
	Interval     time.Duration
	Concurrency  int
	// MaxPages overrides the per-type page caps when positive.
	MaxPages     int
	CommitsDelay Delay
	IssuesDelay  Delay
	Profiles     ProfileBackfiller
	Recorder     Recorder
}

// Syncer orchestrates the fetching and storing of data.
type Syncer struct {
	store           Store
	source          Source
	profiles        ProfileBackfiller
	recorder        Recorder
	logger          *slog.Logger
	reposToSync     []RepoIdentifier
	syncInterval    time.Duration
	concurrency     int
	commitsMaxPages int
	issuesMaxPages  int
	commitsDelay    Delay
	issuesDelay     Delay
	now             func() time.Time
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store Store, source Source, logger *slog.Logger, opts Options) (*Syncer, error) {
	parsedRepos, err := parseRepoIdentifiers(opts.Repos)
	if err != nil {
		return nil, err
	}

	s := &Syncer{
		store:           store,
		source:          source,
		profiles:        opts.Profiles,
		recorder:        opts.Recorder,
		logger:          logger,
		reposToSync:     parsedRepos,
		syncInterval:    opts.Interval,
		concurrency:     opts.Concurrency,
		commitsMaxPages: MaxCommitsPages,
		issuesMaxPages:  MaxPages,
		commitsDelay:    opts.CommitsDelay,
		issuesDelay:     opts.IssuesDelay,
		now:             time.Now,
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if opts.MaxPages > 0 {
		s.commitsMaxPages, s.issuesMaxPages = opts.MaxPages, opts.MaxPages
	}
	if s.commitsDelay == nil {
		s.commitsDelay = FixedDelay(defaultCommitsDelay)
	}
	if s.issuesDelay == nil {
		s.issuesDelay = JitterDelay{Min: defaultIssuesMin, Max: defaultIssuesMax}
	}
	return s, nil
}

// Start begins the continuous synchronization process.
func (s *Syncer) Start(ctx context.Context) {
	s.logger.Info("Starting syncer", "interval", s.syncInterval.String(), "concurrency", s.concurrency, "repos", len(s.reposToSync))
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.runSyncCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.runSyncCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runSyncCycle syncs every configured repository. Repositories run
// concurrently; the runs for one repository are strictly sequential.
func (s *Syncer) runSyncCycle(ctx context.Context) {
	s.logger.Info("Starting new sync cycle")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, repoID := range s.reposToSync {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := s.SyncRepo(gctx, repoID); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Failed to sync repository", "owner", repoID.Owner, "repo", repoID.Name, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("Sync cycle finished with an error", "error", err)
	} else {
		s.logger.Info("Sync cycle finished")
	}
}

// SyncRepo runs the commits sync, the issues sync and the profile backfill for one repository.
// A failing step aborts the remaining ones.
func (s *Syncer) SyncRepo(ctx context.Context, id RepoIdentifier) error {
	logger := s.logger.With("owner", id.Owner, "repo", id.Name)
	logger.Info("Syncing repository")

	if _, err := s.SyncCommits(ctx, id.Owner, id.Name); err != nil {
		return err
	}

	numbers, err := s.SyncIssues(ctx, id.Owner, id.Name)
	if err != nil {
		return err
	}
	logger.Info("Issues ready for comment and timeline fetch", "issue_numbers", numbers)

	if s.profiles == nil {
		return nil
	}
	_, err = s.BackfillProfiles(ctx, id.Owner, id.Name)
	return err
}

// BackfillProfiles stores the profiles of users referenced by the repository's commits and timelines.
func (s *Syncer) BackfillProfiles(ctx context.Context, owner, repo string) (profile.Result, error) {
	if s.profiles == nil {
		return profile.Result{}, errors.New("profile backfill is not configured")
	}

	var result profile.Result
	_, err := s.recordRun(ctx, model.SyncProfiles, owner, repo, func() (pageStats, error) {
		var err error
		result, err = s.profiles.Backfill(ctx, owner, repo)
		return pageStats{documents: result.Fetched}, err
	})
	return result, err
}

// recordRun executes fn and hands a summary of it to the recorder.
// Ledger failures are logged and never fail the run.
func (s *Syncer) recordRun(ctx context.Context, syncType model.SyncType, owner, repo string, fn func() (pageStats, error)) (model.Run, error) {
	run := model.Run{
		ID:        uuid.NewString(),
		Type:      syncType,
		Owner:     owner,
		Repo:      repo,
		StartedAt: s.now(),
	}

	stats, err := fn()
	run.FinishedAt = s.now()
	run.Pages = stats.pages
	run.Documents = stats.documents
	run.Status = model.RunSucceeded
	if err != nil {
		run.Status = model.RunFailed
		run.Error = err.Error()
	}

	if s.recorder != nil {
		// The run's own context may already be cancelled.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if recErr := s.recorder.RecordRun(recCtx, run); recErr != nil {
			s.logger.Warn("Failed to record sync run", "run_id", run.ID, "error", recErr)
		}
	}
	return run, err
}

func parseRepoIdentifiers(repos []string) ([]RepoIdentifier, error) {
	var identifiers []RepoIdentifier
	for _, r := range repos {
		parts := strings.Split(strings.TrimSpace(r), "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &custom_errors.ErrInvalidRepoFormat{Repo: r}
		}
		identifiers = append(identifiers, RepoIdentifier{Owner: parts[0], Name: parts[1]})
	}
	return identifiers, nil
}
