// internal/syncer/pager.go
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github-index-sync/internal/model"
)

// MaxPages bounds a single run's pagination loop.
const MaxPages = 9999

// MaxCommitsPages is the commits run's cap; it stops one page short of MaxPages.
const MaxCommitsPages = MaxPages - 1

// runState names the steps of one sync run, in order.
type runState string

const (
	stateInit              runState = "INIT"
	stateCheckLoaded       runState = "CHECK_LOADED"
	statePaging            runState = "PAGING"
	statePageEmpty         runState = "PAGE_EMPTY"
	statePageCap           runState = "PAGE_CAP"
	stateCheckpointWritten runState = "CHECKPOINT_WRITTEN"
	stateEnd               runState = "END"
)

// fetchFunc fetches one page. more is false once the page came back empty.
type fetchFunc func(ctx context.Context, page int) (items []json.RawMessage, more bool, err error)

// pageFunc observes a page's raw items before they are written.
type pageFunc func(items []json.RawMessage) error

type pageStats struct {
	pages     int
	documents int
	capped    bool
}

// paginate requests pages 1, 2, ... until an empty page or maxPages, and
// bulk-writes every non-empty page into index with one call per page.
func (s *Syncer) paginate(ctx context.Context, logger *slog.Logger, index, owner, repo string, maxPages int, delay Delay, fetch fetchFunc, onPage pageFunc) (pageStats, error) {
	var stats pageStats
	logger.Debug("Sync state", "state", statePaging)

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := delay.Wait(ctx); err != nil {
				return stats, err
			}
		}

		items, more, err := fetch(ctx, page)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if !more {
			logger.Info("Reached empty page, stopping", "page", page)
			logger.Debug("Sync state", "state", statePageEmpty)
			return stats, nil
		}

		if onPage != nil {
			if err := onPage(items); err != nil {
				return stats, err
			}
		}

		if err := s.store.BulkIndex(ctx, index, s.toDocuments(items, owner, repo)); err != nil {
			return stats, fmt.Errorf("failed to index page %d: %w", page, err)
		}
		stats.pages++
		stats.documents += len(items)
		logger.Info("Indexed page", "page", page, "count", len(items))
	}

	stats.capped = true
	logger.Warn("Reached page cap, stopping", "max_pages", maxPages)
	logger.Debug("Sync state", "state", statePageCap)
	return stats, nil
}

// toDocuments tags every raw item with the owner/repo search key.
func (s *Syncer) toDocuments(items []json.RawMessage, owner, repo string) []model.Document {
	updatedAt := s.now().UnixMilli()
	docs := make([]model.Document, len(items))
	for i, item := range items {
		docs[i] = model.Document{
			SearchKey: model.SearchKey{
				Owner:     owner,
				Repo:      repo,
				UpdatedAt: updatedAt,
			},
			RawData: item,
		}
	}
	return docs
}
