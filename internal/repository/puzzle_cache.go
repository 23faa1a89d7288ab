package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/metrics"
	"puzzletrainer/internal/models"
)

const puzzleCacheKeyPrefix = "puzzle:"

// PuzzleCacheRepository caches corpus puzzle payloads in Redis. Entries leave through their TTL
// or when the corpus no longer has the puzzle.
type PuzzleCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPuzzleCacheRepository creates a new puzzle cache repository.
func NewPuzzleCacheRepository(client *redis.Client, ttl time.Duration) *PuzzleCacheRepository {
	return &PuzzleCacheRepository{client: client, ttl: ttl}
}

// Get returns the cached puzzle, or (nil, nil) if not found.
func (r *PuzzleCacheRepository) Get(ctx context.Context, puzzleID string) (*models.Puzzle, error) {
	data, err := r.client.Get(ctx, puzzleCacheKeyPrefix+puzzleID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var puzzle models.Puzzle
	if err := json.Unmarshal([]byte(data), &puzzle); err != nil {
		return nil, err
	}
	return &puzzle, nil
}

// Set stores the puzzle with the configured TTL.
func (r *PuzzleCacheRepository) Set(ctx context.Context, puzzle *models.Puzzle) error {
	data, err := json.Marshal(puzzle)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, puzzleCacheKeyPrefix+puzzle.ID, data, r.ttl).Err()
}

// Delete drops the cached puzzle.
func (r *PuzzleCacheRepository) Delete(ctx context.Context, puzzleID string) error {
	return r.client.Del(ctx, puzzleCacheKeyPrefix+puzzleID).Err()
}

// CachedPuzzleStore serves GetByID through the cache and random draws straight from the corpus.
type CachedPuzzleStore struct {
	puzzles *PuzzleRepository
	cache   *PuzzleCacheRepository
	log     *logger.Logger
}

// NewCachedPuzzleStore wraps puzzles with cache. A nil cache disables caching.
func NewCachedPuzzleStore(puzzles *PuzzleRepository, cache *PuzzleCacheRepository, log *logger.Logger) *CachedPuzzleStore {
	return &CachedPuzzleStore{puzzles: puzzles, cache: cache, log: log}
}

// GetByID returns a puzzle from the cache, falling back to the corpus; cache errors are logged.
// The corpus stays authoritative for existence: a puzzle it no longer holds is nil and its cache
// entry is dropped.
func (s *CachedPuzzleStore) GetByID(ctx context.Context, puzzleID string) (*models.Puzzle, error) {
	if s.cache == nil {
		return s.puzzles.GetByID(ctx, puzzleID)
	}
	exists, err := s.puzzles.Exists(ctx, puzzleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.forget(ctx, puzzleID)
		return nil, nil
	}

	cached, err := s.cache.Get(ctx, puzzleID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("cache").Inc()
		s.log.Warn("puzzle cache read failed", "puzzleId", puzzleID, "error", err)
	} else if cached != nil {
		return cached, nil
	}
	puzzle, err := s.puzzles.GetByID(ctx, puzzleID)
	if err != nil || puzzle == nil {
		return puzzle, err
	}
	s.remember(ctx, puzzle)
	return puzzle, nil
}

// GetRandom draws from the corpus and caches the result for the follow-up submission.
func (s *CachedPuzzleStore) GetRandom(ctx context.Context, rng RandomSource, ratingMin, ratingMax int, tags []string) (*models.Puzzle, error) {
	puzzle, err := s.puzzles.GetRandom(ctx, rng, ratingMin, ratingMax, tags)
	if err != nil || puzzle == nil {
		return puzzle, err
	}
	s.remember(ctx, puzzle)
	return puzzle, nil
}

func (s *CachedPuzzleStore) forget(ctx context.Context, puzzleID string) {
	if err := s.cache.Delete(ctx, puzzleID); err != nil {
		metrics.StoreErrors.WithLabelValues("cache").Inc()
		s.log.Warn("puzzle cache delete failed", "puzzleId", puzzleID, "error", err)
	}
}

func (s *CachedPuzzleStore) remember(ctx context.Context, puzzle *models.Puzzle) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, puzzle); err != nil {
		metrics.StoreErrors.WithLabelValues("cache").Inc()
		s.log.Warn("puzzle cache write failed", "puzzleId", puzzle.ID, "error", err)
	}
}
