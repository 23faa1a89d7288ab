package repository

import (
	"context"

	"gorm.io/gorm"

	"puzzletrainer/internal/models"
)

// ThemeRepository reads and administers the theme catalog.
type ThemeRepository struct {
	db *gorm.DB
}

// NewThemeRepository creates a new theme repository.
func NewThemeRepository(db *gorm.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

func (r *ThemeRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// All returns every theme ordered by name.
func (r *ThemeRepository) All(ctx context.Context) ([]models.Theme, error) {
	var themes []models.Theme
	err := r.db.WithContext(ctx).Order("name ASC").Find(&themes).Error
	return themes, err
}

// ByExternalTags returns the themes whose corpus tag is in tags.
func (r *ThemeRepository) ByExternalTags(ctx context.Context, tx *gorm.DB, tags []string) ([]models.Theme, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	var themes []models.Theme
	err := r.conn(tx).WithContext(ctx).
		Where("external_tag IN ?", tags).
		Order("id ASC").
		Find(&themes).Error
	return themes, err
}

// TrainableIDs returns the ids of every trainable theme.
func (r *ThemeRepository) TrainableIDs(ctx context.Context, tx *gorm.DB) ([]uint, error) {
	var ids []uint
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Theme{}).
		Where("trainable = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// GetByName returns a theme or nil.
func (r *ThemeRepository) GetByName(ctx context.Context, tx *gorm.DB, name string) (*models.Theme, error) {
	var theme models.Theme
	err := r.conn(tx).WithContext(ctx).Where("name = ?", name).Limit(1).Find(&theme).Error
	if err != nil {
		return nil, err
	}
	if theme.ID == 0 {
		return nil, nil
	}
	return &theme, nil
}

// Save validates theme against its parent and inserts or updates it by name.
func (r *ThemeRepository) Save(ctx context.Context, tx *gorm.DB, theme *models.Theme, parent *models.Theme) error {
	if err := theme.Validate(parent); err != nil {
		return err
	}
	if parent != nil {
		theme.ParentID = &parent.ID
	} else {
		theme.ParentID = nil
	}

	existing, err := r.GetByName(ctx, tx, theme.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.conn(tx).WithContext(ctx).Create(theme).Error
	}
	theme.ID = existing.ID
	return r.conn(tx).WithContext(ctx).
		Model(&models.Theme{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"external_tag": theme.ExternalTag,
			"parent_id":    theme.ParentID,
			"trainable":    theme.Trainable,
			"description":  theme.Description,
		}).Error
}
