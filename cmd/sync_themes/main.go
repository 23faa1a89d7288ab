package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"puzzletrainer/internal/catalog"
	"puzzletrainer/internal/config"
	"puzzletrainer/internal/database"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/repository"
	"puzzletrainer/internal/service"
)

func main() {
	var path string
	var dryRun bool
	flag.StringVar(&path, "catalog", "", "theme catalog file (default THEME_CATALOG_PATH, else the built-in catalog)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the catalog and check its tags against the corpus without writing")
	flag.Parse()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if path == "" {
		path = cfg.ThemeCatalogPath
	}
	c, err := catalog.Load(path)
	if err != nil {
		log.Fatal("invalid theme catalog", "path", path, "error", err)
	}

	ctx := context.Background()
	checkCorpusTags(ctx, cfg, log, c)
	if dryRun {
		log.Info("catalog is valid", "categories", len(c.Categories), "themes", len(c.Tags()))
		return
	}

	db, err := database.OpenMySQL(cfg, log)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	themes := service.NewThemeService(db, repository.NewThemeRepository(db))
	res, err := themes.SyncCatalog(ctx, c)
	if err != nil {
		log.Fatal("theme sync failed", "error", err)
	}
	log.Info("theme catalog synced", "categories", res.Categories, "themes", res.Themes)
}

// checkCorpusTags warns about catalog tags no corpus puzzle carries; those themes can never be drawn.
func checkCorpusTags(ctx context.Context, cfg config.Config, log *logger.Logger, c *catalog.Catalog) {
	corpus, err := database.OpenCorpus(cfg.PuzzleDBPath, true)
	if err != nil {
		log.Warn("puzzle corpus unavailable, skipping tag check", "error", err)
		return
	}
	defer corpus.Close()

	tags, err := repository.NewPuzzleRepository(corpus).AllTags(ctx)
	if err != nil {
		log.Warn("could not list corpus tags", "error", err)
		return
	}
	known := make(map[string]bool, len(tags))
	for _, t := range tags {
		known[t] = true
	}
	for _, t := range c.Tags() {
		if !known[t] {
			log.Warn("catalog tag not found in corpus", "tag", t)
		}
	}
}
