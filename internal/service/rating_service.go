package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/rating"
	"puzzletrainer/internal/repository"
)

// GlobalScopeName is the RatingChange scope of the overall rating.
const GlobalScopeName = "global"

// RatingService applies puzzle outcomes to ratings and keeps the rating rows reconciled.
type RatingService struct {
	ratings *repository.RatingRepository
	themes  *repository.ThemeRepository
	log     *logger.Logger
}

// NewRatingService creates a new rating service.
func NewRatingService(ratings *repository.RatingRepository, themes *repository.ThemeRepository, log *logger.Logger) *RatingService {
	return &RatingService{
		ratings: ratings,
		themes:  themes,
		log:     log.With("component", "ratings"),
	}
}

// ApplyOutcome updates the global rating and every per-theme rating matching a tag of puzzle,
// each exactly once, against the puzzle's difficulty. It must run inside tx.
func (s *RatingService) ApplyOutcome(ctx context.Context, tx *gorm.DB, userID uint, puzzle *models.Puzzle, solved bool) ([]models.RatingChange, error) {
	themes, err := s.themes.ByExternalTags(ctx, tx, puzzle.Themes)
	if err != nil {
		return nil, fmt.Errorf("resolve puzzle themes: %w", err)
	}

	tagNames := map[uint]string{}
	known := map[string]bool{}
	ids := []uint{models.GlobalScope}
	for _, t := range themes {
		known[t.Tag()] = true
		if _, dup := tagNames[t.ID]; dup {
			continue
		}
		tagNames[t.ID] = t.Tag()
		ids = append(ids, t.ID)
	}
	for _, tag := range puzzle.Themes {
		if !known[tag] {
			s.log.Warn("skipping unknown theme tag", "userId", userID, "puzzleId", puzzle.ID, "tag", tag)
		}
	}

	if _, err := s.ratings.EnsureRatings(ctx, tx, userID, ids...); err != nil {
		return nil, fmt.Errorf("ensure ratings: %w", err)
	}
	rows, err := s.ratings.LockRatings(ctx, tx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock ratings: %w", err)
	}

	score := rating.Score(solved)
	changes := make([]models.RatingChange, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		old := r.Value
		r.Value, r.GamesPlayed = rating.Apply(r.Value, r.GamesPlayed, puzzle.Rating, score)
		if err := s.ratings.Save(ctx, tx, r); err != nil {
			return nil, fmt.Errorf("save rating: %w", err)
		}
		scope := GlobalScopeName
		if !r.IsGlobal() {
			scope = tagNames[r.ThemeID]
		}
		changes = append(changes, models.RatingChange{Scope: scope, ThemeID: r.ThemeID, Old: old, New: r.Value})
	}
	return changes, nil
}

// ThemeRating returns the user's rating for themeID, creating it at the default when missing.
func (s *RatingService) ThemeRating(ctx context.Context, userID, themeID uint) (int, error) {
	if _, err := s.ratings.EnsureRatings(ctx, nil, userID, themeID); err != nil {
		return 0, err
	}
	r, err := s.ratings.Get(ctx, nil, userID, themeID)
	if err != nil {
		return 0, err
	}
	if r == nil {
		return models.DefaultRating, nil
	}
	return r.Value, nil
}

// EnsureUserRatings makes sure the user has a global rating and one rating per trainable theme.
// Existing ratings are never touched. It returns how many rows were created.
func (s *RatingService) EnsureUserRatings(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
	themeIDs, err := s.themes.TrainableIDs(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("load trainable themes: %w", err)
	}
	return s.ratings.EnsureRatings(ctx, tx, userID, append([]uint{models.GlobalScope}, themeIDs...)...)
}

// ReconcileAll runs EnsureUserRatings for every user known to the rating store.
func (s *RatingService) ReconcileAll(ctx context.Context) (users int, created int64, err error) {
	ids, err := s.ratings.UsersWithGlobalRating(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return users, created, err
		}
		n, err := s.EnsureUserRatings(ctx, nil, id)
		if err != nil {
			return users, created, fmt.Errorf("user %d: %w", id, err)
		}
		users++
		created += n
		if n > 0 {
			s.log.Info("created missing theme ratings", "userId", id, "count", n)
		}
	}
	return users, created, nil
}
