// internal/profile/backfill_test.go
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-index-sync/internal/index"
)

// MockStore is a mock of the Store interface.
type MockStore struct {
	mock.Mock
	docs map[string][]string
}

func (m *MockStore) Scan(ctx context.Context, idx, owner, repo string, fn func(raw json.RawMessage) error) error {
	args := m.Called(ctx, idx, owner, repo)
	for _, doc := range m.docs[idx] {
		if err := fn(json.RawMessage(doc)); err != nil {
			return err
		}
	}
	return args.Error(0)
}
func (m *MockStore) ProfileExists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) IndexProfile(ctx context.Context, id int64, profile json.RawMessage) error {
	args := m.Called(ctx, id, profile)
	return args.Error(0)
}

// MockUsers is a mock of the UserSource interface.
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUserByID(ctx context.Context, id int64) (json.RawMessage, error) {
	args := m.Called(ctx, id)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func TestLoader_Backfill(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	docs := map[string][]string{
		index.IndexIssuesTimeline: {
			`{"event": "committed", "actor": {"id": 100}}`,
			`{"event": "cross-referenced", "actor": {"id": 1}, "source": {"issue": {"user": {"id": 2}}}}`,
			`{"event": "labeled", "actor": {"id": 3}}`,
		},
		index.IndexCommits: {
			`{"author": {"id": 1}, "committer": {"id": 1}}`,
			`{"author": {"id": 4}, "committer": null}`,
		},
	}

	t.Run("fetches only missing profiles", func(t *testing.T) {
		store := &MockStore{docs: docs}
		users := new(MockUsers)
		loader := NewLoader(store, users, logger)

		store.On("Scan", ctx, index.IndexIssuesTimeline, "octo", "hello").Return(nil).Once()
		store.On("Scan", ctx, index.IndexCommits, "octo", "hello").Return(nil).Once()
		store.On("ProfileExists", ctx, int64(1)).Return(true, nil).Once()
		for _, id := range []int64{2, 3, 4} {
			store.On("ProfileExists", ctx, id).Return(false, nil).Once()
			raw := json.RawMessage(`{"id": 0}`)
			users.On("GetUserByID", ctx, id).Return(raw, nil).Once()
			store.On("IndexProfile", ctx, id, raw).Return(nil).Once()
		}

		result, err := loader.Backfill(ctx, "octo", "hello")

		require.NoError(t, err)
		assert.Equal(t, Result{IDs: 4, Fetched: 3}, result)
		store.AssertExpectations(t)
		users.AssertExpectations(t)
		users.AssertNotCalled(t, "GetUserByID", ctx, int64(1))
		users.AssertNotCalled(t, "GetUserByID", ctx, int64(100))
	})

	t.Run("scan failure aborts before fetching", func(t *testing.T) {
		store := &MockStore{}
		users := new(MockUsers)
		loader := NewLoader(store, users, logger)
		scanErr := errors.New("index unavailable")

		store.On("Scan", ctx, index.IndexIssuesTimeline, "octo", "hello").Return(scanErr).Once()

		_, err := loader.Backfill(ctx, "octo", "hello")

		assert.ErrorIs(t, err, scanErr)
		store.AssertNotCalled(t, "ProfileExists", mock.Anything, mock.Anything)
		users.AssertNotCalled(t, "GetUserByID", mock.Anything, mock.Anything)
	})

	t.Run("fetch failure propagates", func(t *testing.T) {
		store := &MockStore{}
		users := new(MockUsers)
		loader := NewLoader(store, users, logger)
		fetchErr := errors.New("boom")

		store.On("ProfileExists", ctx, int64(7)).Return(false, nil).Once()
		users.On("GetUserByID", ctx, int64(7)).Return(nil, fetchErr).Once()

		n, err := loader.LoadProfiles(ctx, []int64{7, 7})

		assert.ErrorIs(t, err, fetchErr)
		assert.Equal(t, 0, n)
		store.AssertNotCalled(t, "IndexProfile", mock.Anything, mock.Anything, mock.Anything)
	})
}
