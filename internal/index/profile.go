// internal/index/profile.go
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github-index-sync/internal/model"
)

// ProfileExists reports whether a profile with the given user id is already stored.
func (c *Client) ProfileExists(ctx context.Context, id int64) (bool, error) {
	body, err := encode(profileExistsQuery(id))
	if err != nil {
		return false, err
	}

	resp, err := c.os.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{IndexProfiles},
		Body:    body,
	})
	if isIndexNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up profile %d: %w", id, err)
	}
	return resp.Hits.Total.Value > 0, nil
}

// IndexProfile stores one raw user profile keyed by its id.
func (c *Client) IndexProfile(ctx context.Context, id int64, profile json.RawMessage) error {
	body, err := encode(model.Document{
		SearchKey: model.SearchKey{UpdatedAt: c.now().UnixMilli()},
		RawData:   profile,
	})
	if err != nil {
		return err
	}

	_, err = c.os.Index(ctx, opensearchapi.IndexReq{
		Index:      IndexProfiles,
		DocumentID: strconv.FormatInt(id, 10),
		Body:       body,
	})
	if err != nil {
		return fmt.Errorf("failed to store profile %d: %w", id, err)
	}
	return nil
}
