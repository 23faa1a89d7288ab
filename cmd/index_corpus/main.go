package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"puzzletrainer/internal/config"
	"puzzletrainer/internal/database"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/repository"
	"puzzletrainer/internal/service"
)

func main() {
	var path string
	var seed int64
	flag.StringVar(&path, "db", "", "puzzle corpus file (default PUZZLE_DB_PATH)")
	flag.Int64Var(&seed, "seed", 0, "seed for sampling keys (default: current time)")
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
		path = cfg.PuzzleDBPath
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	corpus, err := database.OpenCorpus(path, false)
	if err != nil {
		log.Fatal("failed to open puzzle corpus", "path", path, "error", err)
	}
	defer corpus.Close()

	ctx := context.Background()
	start := time.Now()
	if err := repository.EnsureCorpusIndexes(ctx, corpus); err != nil {
		log.Fatal("index creation failed", "error", err)
	}
	n, err := repository.BackfillSamplingKeys(ctx, corpus, service.NewRand(seed))
	if err != nil {
		log.Fatal("sampling key backfill failed", "updated", n, "error", err)
	}
	log.Info("corpus indexed", "path", path, "keysAssigned", n, "took", time.Since(start).String())
}
