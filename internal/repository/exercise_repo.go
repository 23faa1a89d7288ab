package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"puzzletrainer/internal/models"
)

// ExerciseRepository tracks the one puzzle each user currently has open.
type ExerciseRepository struct {
	db *gorm.DB
}

// NewExerciseRepository creates a new active exercise repository.
func NewExerciseRepository(db *gorm.DB) *ExerciseRepository {
	return &ExerciseRepository{db: db}
}

func (r *ExerciseRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Get returns the user's active exercise or nil.
func (r *ExerciseRepository) Get(ctx context.Context, tx *gorm.DB, userID uint) (*models.ActiveExercise, error) {
	return r.get(r.conn(tx).WithContext(ctx), userID)
}

// GetForUpdate is Get with a row lock.
func (r *ExerciseRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID uint) (*models.ActiveExercise, error) {
	return r.get(r.conn(tx).WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *ExerciseRepository) get(q *gorm.DB, userID uint) (*models.ActiveExercise, error) {
	var ex models.ActiveExercise
	if err := q.Where("user_id = ?", userID).Limit(1).Find(&ex).Error; err != nil {
		return nil, err
	}
	if ex.UserID == 0 {
		return nil, nil
	}
	return &ex, nil
}

// CreateIfAbsent assigns puzzleID unless the user already has an exercise. The returned exercise is
// the one that is active after the call; created reports whether it is the new one.
func (r *ExerciseRepository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, userID uint, puzzleID string, at time.Time) (*models.ActiveExercise, bool, error) {
	ex := models.ActiveExercise{UserID: userID, PuzzleID: puzzleID, AssignedAt: at}
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&ex)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &ex, true, nil
	}
	existing, err := r.Get(ctx, tx, userID)
	return existing, false, err
}

// Delete removes the user's exercise if it is still puzzleID. It returns rows removed.
func (r *ExerciseRepository) Delete(ctx context.Context, tx *gorm.DB, userID uint, puzzleID string) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND puzzle_id = ?", userID, puzzleID).
		Delete(&models.ActiveExercise{})
	return res.RowsAffected, res.Error
}
