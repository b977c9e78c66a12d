package analytics

import (
	"sort"

	"github.com/evgenytsyrulnik-coder/Analytics-Dashboard/internal/models"
	"github.com/google/uuid"
)

// RankUser returns the 1-based position of userID among all users in runs by
// run count (descending, ties by ascending id) and the number of distinct
// users. A user with no runs ranks after everyone.
func RankUser(runs []models.Run, userID uuid.UUID) (rank, distinct int) {
	counts := make(map[uuid.UUID]int64)
	for i := range runs {
		counts[runs[i].UserID]++
	}

	type entry struct {
		id    string
		user  uuid.UUID
		count int64
	}
	entries := make([]entry, 0, len(counts))
	for u, c := range counts {
		entries = append(entries, entry{id: u.String(), user: u, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].id < entries[j].id
	})

	distinct = len(entries)
	for i, e := range entries {
		if e.user == userID {
			return i + 1, distinct
		}
	}
	return distinct + 1, distinct
}
