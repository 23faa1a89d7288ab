package repository

import (
	"context"

	"gorm.io/gorm"

	"puzzletrainer/internal/models"
)

// UserDataRepository removes everything stored for a user.
type UserDataRepository struct {
	db *gorm.DB
}

// NewUserDataRepository creates a new user data repository.
func NewUserDataRepository(db *gorm.DB) *UserDataRepository {
	return &UserDataRepository{db: db}
}

// Purge deletes the user's ratings, cycles, assignments, retry queue, active exercise, attempts,
// daily counters and preferences in one transaction. It returns the number of rows removed.
func (r *UserDataRepository) Purge(ctx context.Context, userID uint) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cycleIDs []uint
		if err := tx.Model(&models.TrainingCycle{}).Where("user_id = ?", userID).Pluck("id", &cycleIDs).Error; err != nil {
			return err
		}
		if len(cycleIDs) > 0 {
			res := tx.Where("cycle_id IN ?", cycleIDs).Delete(&models.CycleTheme{})
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected
		}
		for _, m := range []interface{}{
			&models.TrainingCycle{},
			&models.RetryEntry{},
			&models.ActiveExercise{},
			&models.PuzzleAttempt{},
			&models.DailyProgress{},
			&models.Rating{},
			&models.TrainingPreferences{},
		} {
			res := tx.Where("user_id = ?", userID).Delete(m)
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected
		}
		return nil
	})
	return removed, err
}
