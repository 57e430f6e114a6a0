package messaging

import (
	"sort"

	"github.com/lemarcheluxe/backend/internal/models"
)

// MergeMessages patches a message list with realtime arrivals. Messages whose
// id is already present are dropped, the rest are appended, and the result
// stays in ascending creation order. Neither input is modified.
func MergeMessages(existing, incoming []*models.Message) []*models.Message {
	out := make([]*models.Message, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, m := range existing {
		if m == nil {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	sorted := true
	for _, m := range incoming {
		if m == nil {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if n := len(out); n > 0 && m.CreatedAt.Before(out[n-1].CreatedAt) {
			sorted = false
		}
		out = append(out, m)
	}

	if !sorted {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	return out
}

// ApplyRead marks the message with the given id read in place and reports
// whether it was found
func ApplyRead(msgs []*models.Message, messageID string) bool {
	for _, m := range msgs {
		if m != nil && m.ID == messageID {
			m.Read = true
			return true
		}
	}
	return false
}
