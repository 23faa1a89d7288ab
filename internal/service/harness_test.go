package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"puzzletrainer/internal/event"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
	"puzzletrainer/internal/testutil"
)

const (
	testUser    uint = 1
	blackToMove      = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
)

// wednesday 14 Oct 2026; its cycle runs Mon 12 to Sun 18
var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type harness struct {
	t           *testing.T
	db          *gorm.DB
	corpus      *sql.DB
	redis       *redis.Client
	themes      []models.Theme
	now         time.Time
	publisher   *event.MockPublisher
	cycles      *repository.CycleRepository
	ratingRepo  *repository.RatingRepository
	retries     *repository.RetryRepository
	exercises   *repository.ExerciseRepository
	progress    *repository.ProgressRepository
	scheduler   *CycleScheduler
	ratings     *RatingService
	leaderboard *LeaderboardService
	session     *SessionService
	training    *TrainingService
	summary     *ProgressService
}

type harnessOption func(*harness, *SessionDeps, *SessionConfig)

func withRetryProbability(p float64) harnessOption {
	return func(_ *harness, _ *SessionDeps, c *SessionConfig) { c.RetryProbability = p }
}

func withBandSteps(steps ...int) harnessOption {
	return func(_ *harness, _ *SessionDeps, c *SessionConfig) { c.BandSteps = steps }
}

func withSharedRand() harnessOption {
	return func(_ *harness, d *SessionDeps, _ *SessionConfig) { d.Rand = NewRand(42) }
}

func withPuzzleStore(wrap func(PuzzleStore) PuzzleStore) harnessOption {
	return func(_ *harness, d *SessionDeps, _ *SessionConfig) { d.Puzzles = wrap(d.Puzzles) }
}

// withPuzzleCache serves puzzles through the Redis cache, as the server does.
func withPuzzleCache() harnessOption {
	return func(h *harness, d *SessionDeps, _ *SessionConfig) {
		d.Puzzles = repository.NewCachedPuzzleStore(
			repository.NewPuzzleRepository(h.corpus),
			repository.NewPuzzleCacheRepository(h.redis, time.Hour),
			logger.NewNop(),
		)
	}
}

// puzzleStores lists the store setups that must behave alike.
var puzzleStores = []struct {
	name string
	opts []harnessOption
}{
	{"corpus", nil},
	{"cached", []harnessOption{withPuzzleCache()}},
}

func newHarness(t *testing.T, tags []string, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{t: t, now: testNow}
	h.db = testutil.NewUserDB(t)
	h.themes = testutil.SeedThemes(t, h.db, tags...)
	h.corpus = newCorpus(t)
	h.redis, _ = testutil.NewRedis(t)
	h.publisher = event.NewMockPublisher()
	log := logger.NewNop()
	clock := func() time.Time { return h.now }

	h.cycles = repository.NewCycleRepository(h.db)
	h.ratingRepo = repository.NewRatingRepository(h.db)
	h.retries = repository.NewRetryRepository(h.db)
	h.exercises = repository.NewExerciseRepository(h.db)
	h.progress = repository.NewProgressRepository(h.db)
	themeRepo := repository.NewThemeRepository(h.db)
	leaderboardRepo := repository.NewLeaderboardRepository(h.redis)

	h.scheduler = NewCycleScheduler(h.db, h.cycles, h.ratingRepo, map[int]int{1: 5, 2: 3, 3: 2}, 105, log)
	h.ratings = NewRatingService(h.ratingRepo, themeRepo, log)
	h.leaderboard = NewLeaderboardService(h.ratingRepo, leaderboardRepo, log)

	deps := SessionDeps{
		DB:          h.db,
		Puzzles:     repository.NewPuzzleRepository(h.corpus),
		Exercises:   h.exercises,
		Retries:     h.retries,
		Cycles:      h.cycles,
		Progress:    h.progress,
		Scheduler:   h.scheduler,
		Ratings:     h.ratings,
		Leaderboard: leaderboardRepo,
		Publisher:   h.publisher,
		Rand:        rand.New(rand.NewSource(42)),
		Now:         clock,
		Log:         log,
	}
	cfg := SessionConfig{
		RetryProbability: 0,
		BandSteps:        []int{50, 100, 200},
		StoreTimeout:     time.Second,
	}
	for _, opt := range opts {
		opt(h, &deps, &cfg)
	}
	h.session = NewSessionService(deps, cfg)
	h.training = NewTrainingService(h.db, h.cycles, repository.NewUserDataRepository(h.db), h.scheduler, h.ratings, h.leaderboard, 105, clock, log)
	h.summary = NewProgressService(h.cycles, h.ratingRepo, h.retries, h.progress, h.leaderboard, clock)
	return h
}

func newCorpus(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.CreateCorpusSchema(context.Background(), db))
	require.NoError(t, repository.EnsureCorpusIndexes(context.Background(), db))
	return db
}

var nextKey int64

func (h *harness) addPuzzle(id string, rating int, tags ...string) {
	h.t.Helper()
	nextKey += 7919
	_, err := h.corpus.Exec(`INSERT INTO puzzles (puzzle_id, fen, moves, rating, rnd) VALUES (?, ?, ?, ?, ?)`,
		id, blackToMove, "e7e5 g1f3", rating, nextKey%repository.SamplingKeySpace)
	require.NoError(h.t, err)
	for _, tag := range tags {
		_, err := h.corpus.Exec(`INSERT OR IGNORE INTO themes (name) VALUES (?)`, tag)
		require.NoError(h.t, err)
		_, err = h.corpus.Exec(`INSERT INTO puzzle_themes (puzzle_id, theme_id) SELECT ?, id FROM themes WHERE name = ?`, id, tag)
		require.NoError(h.t, err)
	}
}

func (h *harness) removePuzzle(id string) {
	h.t.Helper()
	_, err := h.corpus.Exec(`DELETE FROM puzzles WHERE puzzle_id = ?`, id)
	require.NoError(h.t, err)
}

func (h *harness) initialize() {
	h.t.Helper()
	_, err := h.training.Initialize(context.Background(), testUser, nil)
	require.NoError(h.t, err)
}

func (h *harness) setGlobal(value, games int) {
	h.t.Helper()
	err := h.db.Model(&models.Rating{}).
		Where("user_id = ? AND theme_id = ?", testUser, models.GlobalScope).
		Updates(map[string]interface{}{"value": value, "games_played": games}).Error
	require.NoError(h.t, err)
}

func (h *harness) global() models.Rating {
	h.t.Helper()
	r, err := h.ratingRepo.Get(context.Background(), nil, testUser, models.GlobalScope)
	require.NoError(h.t, err)
	require.NotNil(h.t, r)
	return *r
}

func (h *harness) retryEntry(puzzleID string) *models.RetryEntry {
	h.t.Helper()
	var entry models.RetryEntry
	err := h.db.Where("user_id = ? AND puzzle_id = ?", testUser, puzzleID).Limit(1).Find(&entry).Error
	require.NoError(h.t, err)
	if entry.ID == 0 {
		return nil
	}
	return &entry
}

func (h *harness) count(model interface{}) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(model).Count(&n).Error)
	return n
}

// failingStore simulates an unreachable corpus.
type failingStore struct{ err error }

func (f failingStore) GetByID(context.Context, string) (*models.Puzzle, error) {
	return nil, f.err
}

func (f failingStore) GetRandom(context.Context, repository.RandomSource, int, int, []string) (*models.Puzzle, error) {
	return nil, f.err
}

var errCorpusDown = errors.New("disk I/O error")
