package moderation

import "sort"

// Moderators is the immutable allow-list of staff identities.
type Moderators struct {
	ids map[int64]struct{}
}

// NewModerators builds the allow-list; non-positive ids are ignored.
func NewModerators(ids ...int64) Moderators {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	return Moderators{ids: set}
}

// Contains reports whether userID is a moderator.
func (m Moderators) Contains(userID int64) bool {
	_, ok := m.ids[userID]
	return ok
}

// IDs returns the moderator ids in ascending order.
func (m Moderators) IDs() []int64 {
	out := make([]int64, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len is the number of moderators.
func (m Moderators) Len() int {
	return len(m.ids)
}
