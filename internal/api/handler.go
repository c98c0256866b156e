// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custom_errors "github-index-sync/internal/errors"
	"github-index-sync/internal/model"
	"github-index-sync/internal/profile"
)

// Syncer runs sync operations on demand.
type Syncer interface {
	SyncCommits(ctx context.Context, owner, repo string) (string, error)
	SyncIssues(ctx context.Context, owner, repo string) ([]int, error)
	BackfillProfiles(ctx context.Context, owner, repo string) (profile.Result, error)
}

// CheckpointReader reads sync checkpoints.
type CheckpointReader interface {
	LatestCheckpoint(ctx context.Context, key model.CheckpointKey) (model.Checkpoint, bool, error)
}

// RunLister lists recorded sync runs.
type RunLister interface {
	ListRecentRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	syncer      Syncer
	checkpoints CheckpointReader
	runs        RunLister
	logger      *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
// runs may be nil when no run ledger is configured.
func NewRouter(syncer Syncer, checkpoints CheckpointReader, runs RunLister, logger *slog.Logger) http.Handler {
	h := &Handler{
		syncer:      syncer,
		checkpoints: checkpoints,
		runs:        runs,
		logger:      logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/repos/{owner}/{name}/checkpoints/{type}", h.getCheckpoint)
			r.Get("/runs", h.listRuns)
		})

		// Sync runs are bounded by the page cap, not by a request timeout.
		r.Post("/repos/{owner}/{name}/sync/commits", h.syncCommits)
		r.Post("/repos/{owner}/{name}/sync/issues", h.syncIssues)
		r.Post("/repos/{owner}/{name}/profiles", h.backfillProfiles)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// syncCommits runs one commits sync.
// POST /v1/repos/{owner}/{name}/sync/commits
func (h *Handler) syncCommits(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "name")

	result, err := h.syncer.SyncCommits(r.Context(), owner, name)
	if err != nil {
		h.respondWithSyncError(w, err, "commits sync failed", owner, name)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"result": result})
}

// syncIssues runs one issues sync and returns the issue numbers it saw.
// POST /v1/repos/{owner}/{name}/sync/issues
func (h *Handler) syncIssues(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "name")

	numbers, err := h.syncer.SyncIssues(r.Context(), owner, name)
	if err != nil {
		h.respondWithSyncError(w, err, "issues sync failed", owner, name)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]int{"issue_numbers": numbers})
}

// backfillProfiles stores profiles of every user referenced by the repository.
// POST /v1/repos/{owner}/{name}/profiles
func (h *Handler) backfillProfiles(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "name")

	result, err := h.syncer.BackfillProfiles(r.Context(), owner, name)
	if err != nil {
		h.respondWithSyncError(w, err, "profile backfill failed", owner, name)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type checkpointResponse struct {
	Type      model.SyncType `json:"sync_type"`
	Owner     string         `json:"owner"`
	Repo      string         `json:"repo"`
	UpdatedAt time.Time      `json:"updated_at"`
	SyncedAt  time.Time      `json:"synced_at"`
	SyncSince *time.Time     `json:"sync_since,omitempty"`
	SyncUntil *time.Time     `json:"sync_until,omitempty"`
	Watermark time.Time      `json:"watermark"`
}

// getCheckpoint returns the latest checkpoint of a sync type.
// GET /v1/repos/{owner}/{name}/checkpoints/{type}
func (h *Handler) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "name")
	syncType := model.SyncType(chi.URLParam(r, "type"))
	if !syncType.Valid() {
		respondWithError(w, http.StatusBadRequest, "Invalid sync type. Must be 'github_commits' or 'github_issues'.")
		return
	}

	key := model.CheckpointKey{Type: syncType, Owner: owner, Repo: name}
	cp, found, err := h.checkpoints.LatestCheckpoint(r.Context(), key)
	if err != nil {
		h.logger.Error("Failed to read checkpoint", "owner", owner, "repo", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !found {
		notFound := custom_errors.NewCheckpointNotFound(string(syncType), owner, name)
		respondWithError(w, notFound.Status, notFound.Message)
		return
	}

	resp := checkpointResponse{
		Type:      syncType,
		Owner:     owner,
		Repo:      name,
		UpdatedAt: cp.UpdatedAt,
		SyncedAt:  cp.SyncedAt,
		Watermark: cp.Watermark(),
	}
	if syncType == model.SyncCommits {
		resp.SyncSince, resp.SyncUntil = &cp.SyncSince, &cp.SyncUntil
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// listRuns returns the most recent sync runs.
// GET /v1/runs?limit=N
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "20" // Default limit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return
	}

	if h.runs == nil {
		respondWithJSON(w, http.StatusOK, []model.Run{})
		return
	}

	runs, err := h.runs.ListRecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, runs)
}

func (h *Handler) respondWithSyncError(w http.ResponseWriter, err error, msg, owner, name string) {
	var notFound *custom_errors.CheckpointNotFoundError
	if errors.As(err, &notFound) {
		respondWithError(w, notFound.Status, notFound.Message)
		return
	}
	h.logger.Error(msg, "owner", owner, "repo", name, "error", err)
	respondWithError(w, http.StatusBadGateway, msg)
}
