// internal/model/models.go
package model

import (
	"encoding/json"
	"time"
)

// SyncType identifies which kind of data a checkpoint or run belongs to.
type SyncType string

const (
	SyncCommits  SyncType = "github_commits"
	SyncIssues   SyncType = "github_issues"
	SyncProfiles SyncType = "github_profiles"
)

// Valid reports whether t names a checkpointed sync.
func (t SyncType) Valid() bool {
	return t == SyncCommits || t == SyncIssues
}

// CheckpointKey identifies exactly one checkpoint document.
type CheckpointKey struct {
	Type  SyncType
	Owner string
	Repo  string
}

// Checkpoint records how far a previous sync run progressed.
type Checkpoint struct {
	Key       CheckpointKey
	UpdatedAt time.Time
	// SyncedAt is when the run that wrote the checkpoint started.
	SyncedAt time.Time
	// SyncSince and SyncUntil bound the commit window that was covered.
	SyncSince time.Time
	SyncUntil time.Time
}

// Watermark is the lower bound for the next run's fetch window.
func (c Checkpoint) Watermark() time.Time {
	if c.Key.Type == SyncCommits {
		return c.SyncUntil
	}
	return c.SyncedAt
}

// TimeWindow is the [Since, Until) range requested from the API.
// A zero Until means "up to now".
type TimeWindow struct {
	Since time.Time
	Until time.Time
}

// SearchKey is the envelope attached to every stored item for filtered queries.
type SearchKey struct {
	Owner     string `json:"owner,omitempty"`
	Repo      string `json:"repo,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Document is one remote item as written into the index store.
type Document struct {
	SearchKey SearchKey       `json:"search_key"`
	RawData   json.RawMessage `json:"raw_data"`
}

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run summarizes one sync run for the run ledger.
type Run struct {
	ID         string    `json:"id"`
	Type       SyncType  `json:"sync_type"`
	Owner      string    `json:"owner"`
	Repo       string    `json:"repo"`
	Status     RunStatus `json:"status"`
	Pages      int       `json:"pages"`
	Documents  int       `json:"documents"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
