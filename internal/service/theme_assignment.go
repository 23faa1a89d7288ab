package service

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

// Cycle theme priorities.
const (
	PriorityWeakest       = 1
	PrioritySecondWeakest = 2
	PriorityStrongest     = 3
)

// SelectCycleThemes picks at most three themes from the user's per-theme ratings: the two
// weakest (priority 1 and 2) and the strongest of the rest (priority 3). Ties break by theme id.
func SelectCycleThemes(ratings []repository.ThemeRating) []models.CycleTheme {
	sorted := append([]repository.ThemeRating(nil), ratings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		return sorted[i].ThemeID < sorted[j].ThemeID
	})

	var out []models.CycleTheme
	for i := 0; i < len(sorted) && i < 2; i++ {
		out = append(out, models.CycleTheme{ThemeID: sorted[i].ThemeID, Priority: i + 1})
	}
	if len(sorted) <= 2 {
		return out
	}

	rest := sorted[2:]
	strongest := rest[0]
	for _, r := range rest[1:] {
		if r.Value > strongest.Value {
			strongest = r
		}
	}
	return append(out, models.CycleTheme{ThemeID: strongest.ThemeID, Priority: PriorityStrongest})
}

// AssignThemes gives cycle its theme set unless it already has one. It must run inside tx; the
// cycle row is locked first so concurrent callers see each other's assignments.
// It returns the number of assignments created.
func (s *CycleScheduler) AssignThemes(ctx context.Context, tx *gorm.DB, cycleID uint) (int64, error) {
	cycle, err := s.cycles.Lock(ctx, tx, cycleID)
	if err != nil {
		return 0, fmt.Errorf("lock cycle: %w", err)
	}
	if cycle == nil {
		return 0, fmt.Errorf("cycle %d not found", cycleID)
	}

	existing, err := s.cycles.CountThemes(ctx, tx, cycle.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	ratings, err := s.ratings.ThemeRatings(ctx, tx, cycle.UserID, 0)
	if err != nil {
		return 0, fmt.Errorf("load theme ratings: %w", err)
	}
	if len(ratings) == 0 {
		s.log.Warn("no theme ratings, cycle left without themes", "userId", cycle.UserID, "cycleId", cycle.ID)
		return 0, nil
	}

	rows := SelectCycleThemes(ratings)
	for i := range rows {
		rows[i].CycleID = cycle.ID
	}
	n, err := s.cycles.InsertThemes(ctx, tx, rows)
	if err != nil {
		return 0, fmt.Errorf("insert cycle themes: %w", err)
	}
	s.log.Info("cycle themes assigned", "userId", cycle.UserID, "cycleId", cycle.ID, "count", n)
	return n, nil
}
