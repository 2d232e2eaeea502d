// Package threads rebuilds ordered review-comment threads from the flat
// comment records the code-host API returns.
package threads

import (
	"sort"

	"github.com/reviewpilot/pkg/models"
)

// Reconstruct groups flat comments into threads keyed by the root
// comment's id.
//
// Within a thread, comments are ordered by creation time ascending; ties
// keep their input order. The root is the first comment in that order
// with no parent reference. When every comment in the group carries a
// parent reference, the earliest comment is promoted to root anyway so a
// non-empty group always yields a thread. If a group holds more than one
// top-level comment, only the first becomes root; the rest stay in the
// reply list.
func Reconstruct(comments []models.Comment) map[string]*models.Thread {
	groups := make(map[string][]models.Comment)
	order := make([]string, 0)
	for _, c := range comments {
		if _, seen := groups[c.ThreadID]; !seen {
			order = append(order, c.ThreadID)
		}
		groups[c.ThreadID] = append(groups[c.ThreadID], c)
	}

	result := make(map[string]*models.Thread, len(groups))
	for _, threadID := range order {
		group := groups[threadID]
		if len(group) == 0 {
			continue
		}

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		root := findRoot(group)

		ordered := make([]models.Comment, 0, len(group))
		ordered = append(ordered, root)
		for _, c := range group {
			if c.ID != root.ID {
				ordered = append(ordered, c)
			}
		}

		result[root.ID] = &models.Thread{
			ID:                threadID,
			PullRequestNumber: root.PullRequestNumber,
			Comments:          ordered,
		}
	}

	return result
}

// findRoot returns the first comment (in sorted order) with no parent
// reference, falling back to the earliest comment if none is marked
// top-level.
func findRoot(sorted []models.Comment) models.Comment {
	for _, c := range sorted {
		if c.IsRoot() {
			return c
		}
	}
	return sorted[0]
}
