package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
	"puzzletrainer/internal/testutil"
)

func TestPuzzleCacheRoundTripAndTTL(t *testing.T) {
	client, mr := testutil.NewRedis(t)
	cache := NewPuzzleCacheRepository(client, time.Hour)
	ctx := context.Background()

	missing, err := cache.Get(ctx, "00001")
	require.NoError(t, err)
	assert.Nil(t, missing)

	puzzle := &models.Puzzle{ID: "00001", FEN: blackToMove, Moves: []string{"e7e5"}, Rating: 1500, Themes: []string{"fork"}, Orientation: "white"}
	require.NoError(t, cache.Set(ctx, puzzle))

	got, err := cache.Get(ctx, "00001")
	require.NoError(t, err)
	assert.Equal(t, puzzle, got)

	mr.FastForward(2 * time.Hour)
	expired, err := cache.Get(ctx, "00001")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestCachedPuzzleStoreReadsThrough(t *testing.T) {
	db := newCorpus(t,
		corpusPuzzle{id: "00001", fen: blackToMove, rating: 1500, rnd: 10, tags: []string{"fork"}},
	)
	client, mr := testutil.NewRedis(t)
	store := NewCachedPuzzleStore(NewPuzzleRepository(db), NewPuzzleCacheRepository(client, time.Hour), logger.NewNop())
	ctx := context.Background()

	p, err := store.GetByID(ctx, "00001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, mr.Exists(puzzleCacheKeyPrefix+"00001"))

	// the payload comes from the cache while the corpus still holds the puzzle
	_, err = db.Exec(`UPDATE puzzles SET rating = 1600 WHERE puzzle_id = ?`, "00001")
	require.NoError(t, err)
	p, err = store.GetByID(ctx, "00001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1500, p.Rating)

	_, err = db.Exec(`DELETE FROM puzzles WHERE puzzle_id = ?`, "00001")
	require.NoError(t, err)
	p, err = store.GetByID(ctx, "00001")
	require.NoError(t, err)
	assert.Nil(t, p, "a puzzle gone from the corpus is not served from the cache")
	assert.False(t, mr.Exists(puzzleCacheKeyPrefix+"00001"))

	missing, err := store.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedPuzzleStoreSurvivesCacheOutage(t *testing.T) {
	db := newCorpus(t,
		corpusPuzzle{id: "00001", fen: whiteToMove, rating: 1500, rnd: 10, tags: []string{"fork"}},
	)
	client, mr := testutil.NewRedis(t)
	store := NewCachedPuzzleStore(NewPuzzleRepository(db), NewPuzzleCacheRepository(client, time.Hour), logger.NewNop())
	mr.Close()

	p, err := store.GetByID(context.Background(), "00001")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "black", p.Orientation)

	p, err = store.GetRandom(context.Background(), fixedSource{v: 0}, 1400, 1600, []string{"fork"})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestCachedPuzzleStoreNeedsCorpus(t *testing.T) {
	db := newCorpus(t,
		corpusPuzzle{id: "00001", fen: whiteToMove, rating: 1500, rnd: 10, tags: []string{"fork"}},
	)
	client, _ := testutil.NewRedis(t)
	store := NewCachedPuzzleStore(NewPuzzleRepository(db), NewPuzzleCacheRepository(client, time.Hour), logger.NewNop())
	ctx := context.Background()

	_, err := store.GetByID(ctx, "00001")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.GetByID(ctx, "00001")
	assert.Error(t, err, "a cached copy does not stand in for an unreachable corpus")
}

func TestLeaderboardRanks(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	repo := NewLeaderboardRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.UpdateRating(ctx, 1, 1500))
	require.NoError(t, repo.UpdateRating(ctx, 2, 1800))
	require.NoError(t, repo.UpdateRating(ctx, 3, 1650))
	require.NoError(t, repo.UpdateRating(ctx, 1, 1700))

	top, err := repo.GetTop(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, LeaderboardEntry{UserID: 2, Rating: 1800, Rank: 1}, top[0])
	assert.Equal(t, LeaderboardEntry{UserID: 1, Rating: 1700, Rank: 2}, top[1])

	rank, err := repo.GetUserRank(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rank)

	require.NoError(t, repo.Remove(ctx, 3))
	rank, err = repo.GetUserRank(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rank)
}
