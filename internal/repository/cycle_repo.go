package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"puzzletrainer/internal/models"
)

// CycleRepository stores training cycles, their theme assignments and training preferences.
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository creates a new cycle repository.
func NewCycleRepository(db *gorm.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

func (r *CycleRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// GetPreferences returns the user's preferences or nil.
func (r *CycleRepository) GetPreferences(ctx context.Context, tx *gorm.DB, userID uint) (*models.TrainingPreferences, error) {
	var prefs models.TrainingPreferences
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	if prefs.UserID == 0 {
		return nil, nil
	}
	return &prefs, nil
}

// UpsertPreferences creates or overwrites the user's preferences.
func (r *CycleRepository) UpsertPreferences(ctx context.Context, tx *gorm.DB, prefs *models.TrainingPreferences) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"puzzles_per_cycle"}),
		}).
		Create(prefs).Error
}

// InsertIfAbsent inserts cycle unless the (user, start, end) window already exists.
// created is true only for the caller whose insert won.
func (r *CycleRepository) InsertIfAbsent(ctx context.Context, tx *gorm.DB, cycle *models.TrainingCycle) (bool, error) {
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "start_date"}, {Name: "end_date"}},
			DoNothing: true,
		}).
		Create(cycle)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Current returns the cycle whose window contains day, or nil.
func (r *CycleRepository) Current(ctx context.Context, tx *gorm.DB, userID uint, day time.Time) (*models.TrainingCycle, error) {
	d := models.DateOf(day)
	var cycle models.TrainingCycle
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND start_date <= ? AND end_date >= ?", userID, d, d).
		Order("start_date DESC").
		Limit(1).
		Find(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

// Lock re-reads the cycle FOR UPDATE.
func (r *CycleRepository) Lock(ctx context.Context, tx *gorm.DB, cycleID uint) (*models.TrainingCycle, error) {
	var cycle models.TrainingCycle
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", cycleID).
		Limit(1).
		Find(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

// Themes returns the cycle's assignments with their themes, by priority.
func (r *CycleRepository) Themes(ctx context.Context, tx *gorm.DB, cycleID uint) ([]models.CycleTheme, error) {
	var rows []models.CycleTheme
	err := r.conn(tx).WithContext(ctx).
		Preload("Theme").
		Where("cycle_id = ?", cycleID).
		Order("priority ASC, theme_id ASC").
		Find(&rows).Error
	return rows, err
}

// CountThemes returns how many assignments a cycle has.
func (r *CycleRepository) CountThemes(ctx context.Context, tx *gorm.DB, cycleID uint) (int64, error) {
	var n int64
	err := r.conn(tx).WithContext(ctx).Model(&models.CycleTheme{}).Where("cycle_id = ?", cycleID).Count(&n).Error
	return n, err
}

// InsertThemes adds assignments; (cycle, theme) pairs that already exist are skipped.
func (r *CycleRepository) InsertThemes(ctx context.Context, tx *gorm.DB, rows []models.CycleTheme) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.conn(tx).WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cycle_id"}, {Name: "theme_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

// IncrementCompleted bumps the completed counter of the user's cycle containing day.
// It returns the number of cycles touched (0 when no cycle covers day).
func (r *CycleRepository) IncrementCompleted(ctx context.Context, tx *gorm.DB, userID uint, day time.Time) (int64, error) {
	d := models.DateOf(day)
	res := r.conn(tx).WithContext(ctx).
		Model(&models.TrainingCycle{}).
		Where("user_id = ? AND start_date <= ? AND end_date >= ?", userID, d, d).
		UpdateColumn("completed", gorm.Expr("completed + ?", 1))
	return res.RowsAffected, res.Error
}
