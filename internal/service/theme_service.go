package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"puzzletrainer/internal/catalog"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

// ThemeGroup is a category with its trainable themes.
type ThemeGroup struct {
	Category models.Theme   `json:"category"`
	Themes   []models.Theme `json:"themes"`
}

// ThemeService exposes the theme catalog.
type ThemeService struct {
	db     *gorm.DB
	themes *repository.ThemeRepository
}

// NewThemeService creates a new theme service.
func NewThemeService(db *gorm.DB, themes *repository.ThemeRepository) *ThemeService {
	return &ThemeService{db: db, themes: themes}
}

// ListGrouped returns every category with its themes, both by name.
func (s *ThemeService) ListGrouped(ctx context.Context) ([]ThemeGroup, error) {
	all, err := s.themes.All(ctx)
	if err != nil {
		return nil, err
	}
	index := map[uint]int{}
	var groups []ThemeGroup
	for _, t := range all {
		if t.ParentID == nil {
			index[t.ID] = len(groups)
			groups = append(groups, ThemeGroup{Category: t, Themes: []models.Theme{}})
		}
	}
	for _, t := range all {
		if t.ParentID == nil {
			continue
		}
		if i, ok := index[*t.ParentID]; ok {
			groups[i].Themes = append(groups[i].Themes, t)
		}
	}
	if groups == nil {
		groups = []ThemeGroup{}
	}
	return groups, nil
}

// SyncCatalog applies c to the theme table. Hierarchy violations come back as ErrInvalidTheme.
func (s *ThemeService) SyncCatalog(ctx context.Context, c *catalog.Catalog) (catalog.SyncResult, error) {
	res, err := c.Sync(ctx, s.db, s.themes)
	if err != nil {
		for _, target := range []error{
			models.ErrTrainableWithoutParent,
			models.ErrTooDeep,
			models.ErrParentTrainable,
			models.ErrTagMismatch,
		} {
			if errors.Is(err, target) {
				return res, fmt.Errorf("%w: %w", ErrInvalidTheme, err)
			}
		}
		return res, err
	}
	return res, nil
}
