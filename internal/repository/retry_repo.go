package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"puzzletrainer/internal/models"
)

// RetryRepository is the per-user queue of failed puzzles.
type RetryRepository struct {
	db *gorm.DB
}

// NewRetryRepository creates a new retry repository.
func NewRetryRepository(db *gorm.DB) *RetryRepository {
	return &RetryRepository{db: db}
}

func (r *RetryRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// RecordFailure creates the entry with fail_count 1 or increments an existing one.
func (r *RetryRepository) RecordFailure(ctx context.Context, tx *gorm.DB, userID uint, puzzleID string, at time.Time) error {
	entry := models.RetryEntry{
		UserID:        userID,
		PuzzleID:      puzzleID,
		FailCount:     1,
		LastAttemptAt: at,
	}
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "puzzle_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"fail_count":      gorm.Expr("fail_count + ?", 1),
				"last_attempt_at": at,
			}),
		}).
		Create(&entry).Error
}

// Remove deletes the entry for (user, puzzle) if present.
func (r *RetryRepository) Remove(ctx context.Context, tx *gorm.DB, userID uint, puzzleID string) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND puzzle_id = ?", userID, puzzleID).
		Delete(&models.RetryEntry{})
	return res.RowsAffected, res.Error
}

// Next returns the entry to retry first: most failures, then oldest attempt. nil when empty.
func (r *RetryRepository) Next(ctx context.Context, tx *gorm.DB, userID uint) (*models.RetryEntry, error) {
	var entry models.RetryEntry
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("fail_count DESC, last_attempt_at ASC, id ASC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

// Count returns the queue length of a user.
func (r *RetryRepository) Count(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.RetryEntry{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
