package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"puzzletrainer/internal/models"
)

// ProgressRepository records attempts and daily counters.
type ProgressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// RecordAttempt appends an attempt to the user's history.
func (r *ProgressRepository) RecordAttempt(ctx context.Context, tx *gorm.DB, userID uint, puzzleID string, solved bool, at time.Time) (*models.PuzzleAttempt, error) {
	attempt := models.PuzzleAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		PuzzleID:  puzzleID,
		Solved:    solved,
		CreatedAt: at,
	}
	if err := r.conn(tx).WithContext(ctx).Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// IncrementDaily bumps the solved or failed counter of the user's day.
func (r *ProgressRepository) IncrementDaily(ctx context.Context, tx *gorm.DB, userID uint, day time.Time, solved bool) error {
	row := models.DailyProgress{UserID: userID, Date: models.DateOf(day)}
	column := "failed"
	if solved {
		row.Solved = 1
		column = "solved"
	} else {
		row.Failed = 1
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column: gorm.Expr(column+" + ?", 1),
			}),
		}).
		Create(&row).Error
}

// Daily returns the user's counters from since onwards, oldest first.
func (r *ProgressRepository) Daily(ctx context.Context, userID uint, since time.Time) ([]models.DailyProgress, error) {
	var rows []models.DailyProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, models.DateOf(since)).
		Order("date ASC").
		Find(&rows).Error
	return rows, err
}

// Totals sums solved and failed for the user between from and to, inclusive.
func (r *ProgressRepository) Totals(ctx context.Context, userID uint, from, to time.Time) (solved, failed int, err error) {
	var sums struct {
		Solved int
		Failed int
	}
	err = r.db.WithContext(ctx).
		Model(&models.DailyProgress{}).
		Select("COALESCE(SUM(solved), 0) AS solved, COALESCE(SUM(failed), 0) AS failed").
		Where("user_id = ? AND date >= ? AND date <= ?", userID, models.DateOf(from), models.DateOf(to)).
		Scan(&sums).Error
	return sums.Solved, sums.Failed, err
}

// RecentAttempts returns the user's latest attempts, newest first.
func (r *ProgressRepository) RecentAttempts(ctx context.Context, userID uint, limit int) ([]models.PuzzleAttempt, error) {
	var rows []models.PuzzleAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
