package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

// CycleScheduler owns the weekly training cycle and the weighted choice of the next theme.
type CycleScheduler struct {
	db            *gorm.DB
	cycles        *repository.CycleRepository
	ratings       *repository.RatingRepository
	weights       map[int]int
	defaultTarget int
	log           *logger.Logger
}

// NewCycleScheduler creates a new cycle scheduler. weights maps priority to draw weight.
func NewCycleScheduler(db *gorm.DB, cycles *repository.CycleRepository, ratings *repository.RatingRepository, weights map[int]int, defaultTarget int, log *logger.Logger) *CycleScheduler {
	return &CycleScheduler{
		db:            db,
		cycles:        cycles,
		ratings:       ratings,
		weights:       weights,
		defaultTarget: defaultTarget,
		log:           log.With("component", "scheduler"),
	}
}

// WeekWindow returns the Monday and Sunday of the week containing day.
func WeekWindow(day time.Time) (start, end time.Time) {
	d := models.DateOf(day)
	offset := (int(d.Weekday()) + 6) % 7
	start = d.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 6)
}

// EnsureCurrentCycle returns the cycle containing now, creating it (and its theme assignment, in
// the same transaction) on first access. Concurrent first accesses create exactly one cycle.
func (s *CycleScheduler) EnsureCurrentCycle(ctx context.Context, userID uint, now time.Time) (*models.TrainingCycle, error) {
	cycle, err := s.cycles.Current(ctx, nil, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load current cycle: %w", err)
	}
	if cycle != nil {
		return cycle, nil
	}

	target := s.defaultTarget
	prefs, err := s.cycles.GetPreferences(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if prefs != nil && prefs.PuzzlesPerCycle > 0 {
		target = prefs.PuzzlesPerCycle
	}

	start, end := WeekWindow(now)
	candidate := &models.TrainingCycle{
		UserID:      userID,
		StartDate:   start,
		EndDate:     end,
		TotalTarget: target,
	}
	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.cycles.InsertIfAbsent(ctx, tx, candidate)
		if err != nil || !created {
			return err
		}
		_, err = s.AssignThemes(ctx, tx, candidate.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create cycle: %w", err)
	}
	if created {
		s.log.Info("training cycle created", "userId", userID, "cycleId", candidate.ID, "start", start.Format("2006-01-02"))
		return candidate, nil
	}

	// lost the race; the winner has committed by the time our insert returned
	cycle, err = s.cycles.Current(ctx, nil, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load current cycle: %w", err)
	}
	if cycle == nil {
		return nil, fmt.Errorf("cycle for user %d vanished after conflict", userID)
	}
	return cycle, nil
}

// BuildWeightedPool repeats each assignment by its priority weight. Assignments whose priority has
// no positive weight are left out.
func BuildWeightedPool(assignments []models.CycleTheme, weights map[int]int) []models.CycleTheme {
	sorted := append([]models.CycleTheme(nil), assignments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var pool []models.CycleTheme
	for _, a := range sorted {
		for i := 0; i < weights[a.Priority]; i++ {
			pool = append(pool, a)
		}
	}
	return pool
}

// PickTheme draws uniformly from the weighted pool of assignments.
func (s *CycleScheduler) PickTheme(rng Rand, assignments []models.CycleTheme) (models.CycleTheme, error) {
	pool := BuildWeightedPool(assignments, s.weights)
	if len(pool) == 0 {
		return models.CycleTheme{}, ErrNoThemesConfigured
	}
	return pool[rng.Intn(len(pool))], nil
}
