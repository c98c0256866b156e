// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCheckpointNotFound is matched by every CheckpointNotFoundError via errors.Is.
var ErrCheckpointNotFound = errors.New("sync checkpoint not found")

// ErrInvalidRepoFormat is returned when a repository string in the config is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// CheckpointNotFoundError aborts a sync run when no previous checkpoint exists
// for the (type, owner, repo) triple. No default start time is assumed.
type CheckpointNotFoundError struct {
	SyncType string
	Owner    string
	Repo     string
	Message  string
	Status   int
}

// NewCheckpointNotFound builds the error returned by a sync run with no prior checkpoint.
func NewCheckpointNotFound(syncType, owner, repo string) *CheckpointNotFoundError {
	return &CheckpointNotFoundError{
		SyncType: syncType,
		Owner:    owner,
		Repo:     repo,
		Message:  fmt.Sprintf("no previous %s sync time for %s/%s", syncType, owner, repo),
		Status:   http.StatusNotFound,
	}
}

func (e *CheckpointNotFoundError) Error() string {
	return e.Message
}

func (e *CheckpointNotFoundError) Is(target error) bool {
	return target == ErrCheckpointNotFound
}
