package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"puzzletrainer/internal/models"
)

// ThemeRating is a per-theme rating joined with its theme.
type ThemeRating struct {
	ThemeID     uint    `json:"themeId"`
	ThemeName   string  `json:"themeName"`
	ExternalTag *string `json:"externalTag,omitempty"`
	Value       int     `json:"value"`
	GamesPlayed int     `json:"gamesPlayed"`
}

// RatingRepository stores global and per-theme ratings.
type RatingRepository struct {
	db *gorm.DB
}

// NewRatingRepository creates a new rating repository.
func NewRatingRepository(db *gorm.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

func (r *RatingRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// EnsureRatings creates the missing (user, theme) rows at the default value and leaves existing
// rows untouched. It returns how many rows were created.
func (r *RatingRepository) EnsureRatings(ctx context.Context, tx *gorm.DB, userID uint, themeIDs ...uint) (int64, error) {
	if len(themeIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]models.Rating, 0, len(themeIDs))
	for _, id := range themeIDs {
		rows = append(rows, models.Rating{
			UserID:    userID,
			ThemeID:   id,
			Value:     models.DefaultRating,
			UpdatedAt: now,
		})
	}
	res := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "theme_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

// LockRatings selects the user's ratings for themeIDs FOR UPDATE, ordered by theme id so that
// concurrent writers always lock in the same order.
func (r *RatingRepository) LockRatings(ctx context.Context, tx *gorm.DB, userID uint, themeIDs []uint) ([]models.Rating, error) {
	var rows []models.Rating
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND theme_id IN ?", userID, themeIDs).
		Order("theme_id ASC").
		Find(&rows).Error
	return rows, err
}

// Get returns one rating or nil.
func (r *RatingRepository) Get(ctx context.Context, tx *gorm.DB, userID, themeID uint) (*models.Rating, error) {
	var row models.Rating
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND theme_id = ?", userID, themeID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// Save persists value and games played of an existing rating.
func (r *RatingRepository) Save(ctx context.Context, tx *gorm.DB, rating *models.Rating) error {
	rating.UpdatedAt = time.Now().UTC()
	return r.conn(tx).WithContext(ctx).
		Model(&models.Rating{}).
		Where("id = ?", rating.ID).
		Updates(map[string]interface{}{
			"value":        rating.Value,
			"games_played": rating.GamesPlayed,
			"updated_at":   rating.UpdatedAt,
		}).Error
}

// ThemeRatings returns the user's ratings on trainable themes, weakest first (ties by theme id).
// limit <= 0 means no limit.
func (r *RatingRepository) ThemeRatings(ctx context.Context, tx *gorm.DB, userID uint, limit int) ([]ThemeRating, error) {
	q := r.conn(tx).WithContext(ctx).
		Table("ratings AS r").
		Select("r.theme_id, t.name AS theme_name, t.external_tag, r.value, r.games_played").
		Joins("JOIN themes AS t ON t.id = r.theme_id").
		Where("r.user_id = ? AND t.trainable = ?", userID, true).
		Order("r.value ASC, r.theme_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []ThemeRating
	err := q.Scan(&out).Error
	return out, err
}

// TopGlobal returns the highest global ratings.
func (r *RatingRepository) TopGlobal(ctx context.Context, limit int) ([]models.Rating, error) {
	var rows []models.Rating
	err := r.db.WithContext(ctx).
		Where("theme_id = ?", models.GlobalScope).
		Order("value DESC, user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// GlobalRank returns the 1-indexed rank of the user's global rating, or 0 without a rating.
func (r *RatingRepository) GlobalRank(ctx context.Context, userID uint) (int, error) {
	own, err := r.Get(ctx, nil, userID, models.GlobalScope)
	if err != nil || own == nil {
		return 0, err
	}
	var higher int64
	err = r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("theme_id = ? AND value > ?", models.GlobalScope, own.Value).
		Count(&higher).Error
	return int(higher) + 1, err
}

// UsersWithGlobalRating lists every user known to the rating store.
func (r *RatingRepository) UsersWithGlobalRating(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Where("theme_id = ?", models.GlobalScope).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
