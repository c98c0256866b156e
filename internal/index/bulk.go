// internal/index/bulk.go
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github-index-sync/internal/model"
)

// BulkIndex writes docs into index with a single _bulk request. The call
// returns once the documents are visible to search.
// Per-item failures are not inspected; they are only logged.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	body, err := bulkBody(index, docs)
	if err != nil {
		return err
	}

	resp, err := c.os.Bulk(ctx, opensearchapi.BulkReq{
		Body:   bytes.NewReader(body),
		Params: opensearchapi.BulkParams{Refresh: "wait_for"},
	})
	if err != nil {
		return fmt.Errorf("bulk write to %s failed: %w", index, err)
	}
	if resp.Errors {
		c.logger.Warn("Bulk write reported item errors", "index", index, "items", len(resp.Items))
	}
	return nil
}

func bulkBody(index string, docs []model.Document) ([]byte, error) {
	action, err := json.Marshal(map[string]any{"index": map[string]string{"_index": index}})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		source, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
