// Package catalog loads the theme catalog file and applies it to the theme table.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

//go:embed themes.yaml
var defaultCatalog []byte

// Entry is a trainable theme.
type Entry struct {
	Name        string `yaml:"name"`
	Tag         string `yaml:"tag"`
	Description string `yaml:"description"`
}

// Category groups trainable themes; categories themselves are never trained.
type Category struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Themes      []Entry `yaml:"themes"`
}

// Catalog is the whole file.
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read theme catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and checks a catalog: names and tags must be present and unique.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse theme catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("theme catalog has no categories")
	}

	names := map[string]bool{}
	tags := map[string]bool{}
	for _, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return nil, fmt.Errorf("category without a name")
		}
		if names[cat.Name] {
			return nil, fmt.Errorf("duplicate theme name %q", cat.Name)
		}
		names[cat.Name] = true
		for _, e := range cat.Themes {
			if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Tag) == "" {
				return nil, fmt.Errorf("theme in %q needs a name and a tag", cat.Name)
			}
			if names[e.Name] {
				return nil, fmt.Errorf("duplicate theme name %q", e.Name)
			}
			if tags[e.Tag] {
				return nil, fmt.Errorf("duplicate theme tag %q", e.Tag)
			}
			names[e.Name] = true
			tags[e.Tag] = true
		}
	}
	return &c, nil
}

// Tags returns every trainable tag in file order.
func (c *Catalog) Tags() []string {
	var out []string
	for _, cat := range c.Categories {
		for _, e := range cat.Themes {
			out = append(out, e.Tag)
		}
	}
	return out
}

// SyncResult counts what Sync wrote.
type SyncResult struct {
	Categories int
	Themes     int
}

// Sync upserts every category and theme by name in one transaction. Themes absent from the
// catalog are left alone; they may still be referenced by ratings.
func (c *Catalog) Sync(ctx context.Context, db *gorm.DB, themes *repository.ThemeRepository) (SyncResult, error) {
	var res SyncResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cat := range c.Categories {
			category := &models.Theme{Name: cat.Name, Description: cat.Description}
			if err := themes.Save(ctx, tx, category, nil); err != nil {
				return fmt.Errorf("save category %q: %w", cat.Name, err)
			}
			res.Categories++

			for _, e := range cat.Themes {
				tag := e.Tag
				theme := &models.Theme{
					Name:        e.Name,
					ExternalTag: &tag,
					Trainable:   true,
					Description: e.Description,
				}
				if err := themes.Save(ctx, tx, theme, category); err != nil {
					return fmt.Errorf("save theme %q: %w", e.Name, err)
				}
				res.Themes++
			}
		}
		return nil
	})
	return res, err
}
