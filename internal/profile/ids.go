// internal/profile/ids.go
package profile

import (
	"encoding/json"
	"fmt"
	"slices"
)

type userRef struct {
	ID *int64 `json:"id"`
}

func (u *userRef) id() (int64, bool) {
	if u == nil || u.ID == nil {
		return 0, false
	}
	return *u.ID, true
}

type commitUsers struct {
	Author    *userRef `json:"author"`
	Committer *userRef `json:"committer"`
}

type timelineEvent struct {
	Event    string   `json:"event"`
	Actor    *userRef `json:"actor"`
	User     *userRef `json:"user"`
	Assignee *userRef `json:"assignee"`
	Source   *struct {
		Issue *struct {
			User *userRef `json:"user"`
		} `json:"issue"`
	} `json:"source"`
}

// IDSet is a deduplicated set of platform user ids.
type IDSet map[int64]struct{}

func (s IDSet) add(refs ...*userRef) {
	for _, ref := range refs {
		if id, ok := ref.id(); ok {
			s[id] = struct{}{}
		}
	}
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AddCommit adds the author and committer ids of a raw commit payload.
func (s IDSet) AddCommit(raw json.RawMessage) error {
	var c commitUsers
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("failed to decode commit: %w", err)
	}
	s.add(c.Author, c.Committer)
	return nil
}

// AddTimelineEvent adds the user ids referenced by a raw issue timeline event.
// "committed" events carry git identities only and are skipped;
// "cross-referenced" events contribute the actor and the referencing issue's author.
func (s IDSet) AddTimelineEvent(raw json.RawMessage) error {
	var ev timelineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("failed to decode timeline event: %w", err)
	}

	switch ev.Event {
	case "committed":
	case "cross-referenced":
		s.add(ev.Actor)
		if ev.Source != nil && ev.Source.Issue != nil {
			s.add(ev.Source.Issue.User)
		}
	default:
		s.add(ev.User, ev.Actor, ev.Assignee)
	}
	return nil
}
