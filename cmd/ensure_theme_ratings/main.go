package main

import (
	"context"
	"fmt"
	"os"

	"puzzletrainer/internal/config"
	"puzzletrainer/internal/database"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/repository"
	"puzzletrainer/internal/service"
)

// Creates any missing per-theme rating for every user that has a global rating.
func main() {
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

	db, err := database.OpenMySQL(cfg, log)
	if err != nil {
		log.Fatal("failed to open database", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ratings := service.NewRatingService(repository.NewRatingRepository(db), repository.NewThemeRepository(db), log)
	users, created, err := ratings.ReconcileAll(context.Background())
	if err != nil {
		log.Fatal("rating reconciliation failed", "usersDone", users, "error", err)
	}
	log.Info("rating reconciliation finished", "users", users, "created", created)
}
