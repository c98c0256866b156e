// internal/index/scan.go
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
)

const (
	scanBatchSize      = 500
	scrollKeepAlive    = 10 * time.Minute
	scrollClearTimeout = 5 * time.Second
)

// Scan walks every document of index tagged with owner/repo and passes its
// raw_data to fn. Scanning stops at the first error returned by fn.
func (c *Client) Scan(ctx context.Context, index, owner, repo string, fn func(raw json.RawMessage) error) error {
	body, err := encode(scanQuery(owner, repo, scanBatchSize))
	if err != nil {
		return err
	}

	resp, err := c.os.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{index},
		Body:    body,
		Params:  opensearchapi.SearchParams{Scroll: scrollKeepAlive},
	})
	if isIndexNotFound(err) {
		c.logger.Info("Index does not exist yet, nothing to scan", "index", index)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start scan of %s: %w", index, err)
	}

	scrollID := resp.ScrollID
	defer func() {
		if scrollID == nil || *scrollID == "" {
			return
		}
		// The scan's own context may already be cancelled.
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scrollClearTimeout)
		defer cancel()
		if _, err := c.os.Scroll.Delete(clearCtx, opensearchapi.ScrollDeleteReq{ScrollIDs: []string{*scrollID}}); err != nil {
			c.logger.Warn("Failed to clear scroll", "index", index, "error", err)
		}
	}()

	hits := resp.Hits.Hits
	for len(hits) > 0 {
		for _, hit := range hits {
			if err := emitRawData(hit.Source, fn); err != nil {
				return err
			}
		}
		if scrollID == nil || *scrollID == "" {
			return nil
		}

		next, err := c.os.Scroll.Get(ctx, opensearchapi.ScrollGetReq{
			ScrollID: *scrollID,
			Params:   opensearchapi.ScrollGetParams{Scroll: scrollKeepAlive},
		})
		if err != nil {
			return fmt.Errorf("failed to continue scan of %s: %w", index, err)
		}
		if next.ScrollID != nil {
			scrollID = next.ScrollID
		}
		hits = next.Hits.Hits
	}
	return nil
}

func emitRawData(source json.RawMessage, fn func(raw json.RawMessage) error) error {
	var doc struct {
		RawData json.RawMessage `json:"raw_data"`
	}
	if err := json.Unmarshal(source, &doc); err != nil {
		return fmt.Errorf("failed to decode scanned document: %w", err)
	}
	if len(doc.RawData) == 0 {
		return nil
	}
	return fn(doc.RawData)
}
