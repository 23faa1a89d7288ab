package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

// MaxPuzzlesPerCycle bounds the per-cycle target a user may ask for.
const MaxPuzzlesPerCycle = 10000

// InitResult reports what Initialize set up.
type InitResult struct {
	PuzzlesPerCycle int             `json:"puzzlesPerCycle"`
	RatingsCreated  int64           `json:"ratingsCreated"`
	Cycle           CycleSummary    `json:"cycle"`
	AssignedThemes  []AssignedTheme `json:"assignedThemes"`
}

// TrainingService sets a user up for training and tears everything down again.
type TrainingService struct {
	db          *gorm.DB
	cycles      *repository.CycleRepository
	userData    *repository.UserDataRepository
	scheduler   *CycleScheduler
	ratings     *RatingService
	leaderboard *LeaderboardService
	defaultSize int
	now         func() time.Time
	log         *logger.Logger
}

// NewTrainingService creates a new training service.
func NewTrainingService(
	db *gorm.DB,
	cycles *repository.CycleRepository,
	userData *repository.UserDataRepository,
	scheduler *CycleScheduler,
	ratings *RatingService,
	leaderboard *LeaderboardService,
	defaultSize int,
	now func() time.Time,
	log *logger.Logger,
) *TrainingService {
	if now == nil {
		now = time.Now
	}
	return &TrainingService{
		db:          db,
		cycles:      cycles,
		userData:    userData,
		scheduler:   scheduler,
		ratings:     ratings,
		leaderboard: leaderboard,
		defaultSize: defaultSize,
		now:         now,
		log:         log.With("component", "training"),
	}
}

// Initialize stores preferences, ensures every rating row, and makes sure the current cycle has
// its themes. Running it again changes nothing but the preferences.
func (s *TrainingService) Initialize(ctx context.Context, userID uint, puzzlesPerCycle *int) (*InitResult, error) {
	if puzzlesPerCycle != nil && (*puzzlesPerCycle <= 0 || *puzzlesPerCycle > MaxPuzzlesPerCycle) {
		return nil, fmt.Errorf("%w: puzzlesPerCycle must be within 1..%d", ErrInvalidRequest, MaxPuzzlesPerCycle)
	}

	result := &InitResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prefs, err := s.cycles.GetPreferences(ctx, tx, userID)
		if err != nil {
			return err
		}
		switch {
		case puzzlesPerCycle != nil:
			prefs = &models.TrainingPreferences{UserID: userID, PuzzlesPerCycle: *puzzlesPerCycle}
			if err := s.cycles.UpsertPreferences(ctx, tx, prefs); err != nil {
				return err
			}
		case prefs == nil:
			prefs = &models.TrainingPreferences{UserID: userID, PuzzlesPerCycle: s.defaultSize}
			if err := s.cycles.UpsertPreferences(ctx, tx, prefs); err != nil {
				return err
			}
		}
		result.PuzzlesPerCycle = prefs.PuzzlesPerCycle

		result.RatingsCreated, err = s.ratings.EnsureUserRatings(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	cycle, err := s.scheduler.EnsureCurrentCycle(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.scheduler.AssignThemes(ctx, tx, cycle.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assign cycle themes: %w", err)
	}
	assignments, err := s.cycles.Themes(ctx, nil, cycle.ID)
	if err != nil {
		return nil, err
	}

	result.Cycle = summarizeCycle(cycle)
	result.AssignedThemes = summarizeThemes(assignments)
	s.log.Info("training initialized", "userId", userID, "ratingsCreated", result.RatingsCreated, "themes", len(assignments))
	return result, nil
}

// Purge deletes everything stored for the user and drops them from the leaderboard.
func (s *TrainingService) Purge(ctx context.Context, userID uint) (int64, error) {
	removed, err := s.userData.Purge(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("purge user data: %w", err)
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.Remove(ctx, userID); err != nil {
			s.log.Warn("leaderboard removal failed", "userId", userID, "error", err)
		}
	}
	s.log.Info("user data purged", "userId", userID, "rows", removed)
	return removed, nil
}
