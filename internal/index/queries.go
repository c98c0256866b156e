// internal/index/queries.go
package index

import (
	"bytes"
	"encoding/json"
	"io"
)

type query map[string]any

func term(field string, value any) query {
	return query{"term": query{field: query{"value": value}}}
}

func mustAll(clauses ...query) query {
	return query{"bool": query{"must": clauses}}
}

// repoFilter matches every document tagged with the owner/repo search key.
func repoFilter(owner, repo string) query {
	return mustAll(
		term("search_key.owner.keyword", owner),
		term("search_key.repo.keyword", repo),
	)
}

// latestCheckpointQuery selects the newest checkpoint for a (type, owner, repo) triple.
func latestCheckpointQuery(syncType, owner, repo string) query {
	return query{
		"size":             1,
		"track_total_hits": true,
		"query": mustAll(
			term("search_key.type.keyword", syncType),
			term("search_key.owner.keyword", owner),
			term("search_key.repo.keyword", repo),
		),
		"sort": []query{
			{"search_key.update_timestamp": query{"order": "desc"}},
		},
	}
}

func profileExistsQuery(id int64) query {
	return query{
		"size":             0,
		"track_total_hits": true,
		"query":            term("raw_data.id", id),
	}
}

func scanQuery(owner, repo string, batch int) query {
	return query{
		"size":  batch,
		"query": repoFilter(owner, repo),
	}
}

func encode(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
