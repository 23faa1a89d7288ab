package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"puzzletrainer/internal/models"
	"puzzletrainer/internal/testutil"
)

var monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func TestEnsureRatingsIsIdempotent(t *testing.T) {
	db := testutil.NewUserDB(t)
	themes := testutil.SeedThemes(t, db, "fork", "pin")
	repo := NewRatingRepository(db)
	ctx := context.Background()

	created, err := repo.EnsureRatings(ctx, nil, 7, models.GlobalScope, themes[0].ID, themes[1].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, created)

	global, err := repo.Get(ctx, nil, 7, models.GlobalScope)
	require.NoError(t, err)
	require.NotNil(t, global)
	global.Value = 1620
	global.GamesPlayed = 4
	require.NoError(t, repo.Save(ctx, nil, global))

	created, err = repo.EnsureRatings(ctx, nil, 7, models.GlobalScope, themes[0].ID, themes[1].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, created)

	global, err = repo.Get(ctx, nil, 7, models.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, 1620, global.Value)
	assert.Equal(t, 4, global.GamesPlayed)

	var n int64
	require.NoError(t, db.Model(&models.Rating{}).Where("user_id = ?", 7).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestThemeRatingsWeakestFirst(t *testing.T) {
	db := testutil.NewUserDB(t)
	themes := testutil.SeedThemes(t, db, "fork", "pin", "skewer")
	repo := NewRatingRepository(db)
	ctx := context.Background()

	_, err := repo.EnsureRatings(ctx, nil, 1, models.GlobalScope, themes[0].ID, themes[1].ID, themes[2].ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Rating{}).Where("user_id = ? AND theme_id = ?", 1, themes[0].ID).Update("value", 1700).Error)

	rows, err := repo.ThemeRatings(ctx, nil, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// equal values tie-break by theme id; the global rating is not a theme
	assert.Equal(t, themes[1].ID, rows[0].ThemeID)
	assert.Equal(t, themes[2].ID, rows[1].ThemeID)
	assert.Equal(t, themes[0].ID, rows[2].ThemeID)
	assert.Equal(t, "pin", rows[0].ThemeName)

	limited, err := repo.ThemeRatings(ctx, nil, 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLockRatingsOrdersByTheme(t *testing.T) {
	db := testutil.NewUserDB(t)
	themes := testutil.SeedThemes(t, db, "fork", "pin")
	repo := NewRatingRepository(db)
	ctx := context.Background()

	_, err := repo.EnsureRatings(ctx, nil, 1, themes[1].ID, models.GlobalScope, themes[0].ID)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.LockRatings(ctx, tx, 1, []uint{themes[1].ID, themes[0].ID, models.GlobalScope})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, models.GlobalScope, rows[0].ThemeID)
		assert.Equal(t, themes[0].ID, rows[1].ThemeID)
		assert.Equal(t, themes[1].ID, rows[2].ThemeID)
		return nil
	})
	require.NoError(t, err)
}

func TestGlobalRank(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewRatingRepository(db)
	ctx := context.Background()

	for user, value := range map[uint]int{1: 1500, 2: 1800, 3: 1600} {
		require.NoError(t, db.Create(&models.Rating{UserID: user, ThemeID: models.GlobalScope, Value: value}).Error)
	}
	rank, err := repo.GlobalRank(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	rank, err = repo.GlobalRank(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)

	top, err := repo.TopGlobal(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.EqualValues(t, 2, top[0].UserID)

	users, err := repo.UsersWithGlobalRating(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, users)
}

func TestThemeSaveValidatesHierarchy(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewThemeRepository(db)
	ctx := context.Background()

	category := &models.Theme{Name: "Endgames"}
	require.NoError(t, repo.Save(ctx, nil, category, nil))
	require.NotZero(t, category.ID)

	tag := "rookEndgame"
	child := &models.Theme{Name: "Rook endgame", ExternalTag: &tag, Trainable: true}
	require.NoError(t, repo.Save(ctx, nil, child, category))
	assert.Equal(t, category.ID, *child.ParentID)

	orphan := &models.Theme{Name: "Orphan", ExternalTag: &tag, Trainable: true}
	assert.ErrorIs(t, repo.Save(ctx, nil, orphan, nil), models.ErrTrainableWithoutParent)

	// saving by name again updates in place
	child.Description = "Rook and pawn endings"
	require.NoError(t, repo.Save(ctx, nil, child, category))
	got, err := repo.GetByName(ctx, nil, "Rook endgame")
	require.NoError(t, err)
	assert.Equal(t, "Rook and pawn endings", got.Description)

	ids, err := repo.TrainableIDs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint{child.ID}, ids)

	byTag, err := repo.ByExternalTags(ctx, nil, []string{"rookEndgame", "unknown"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, child.ID, byTag[0].ID)
}

func TestInsertCycleIfAbsent(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewCycleRepository(db)
	ctx := context.Background()

	first := &models.TrainingCycle{UserID: 1, StartDate: monday, EndDate: monday.AddDate(0, 0, 6), TotalTarget: 105}
	created, err := repo.InsertIfAbsent(ctx, nil, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &models.TrainingCycle{UserID: 1, StartDate: monday, EndDate: monday.AddDate(0, 0, 6), TotalTarget: 50}
	created, err = repo.InsertIfAbsent(ctx, nil, second)
	require.NoError(t, err)
	assert.False(t, created)

	current, err := repo.Current(ctx, nil, 1, monday.AddDate(0, 0, 3).Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, first.ID, current.ID)
	assert.Equal(t, 105, current.TotalTarget)

	none, err := repo.Current(ctx, nil, 1, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCycleThemesInsertedOnce(t *testing.T) {
	db := testutil.NewUserDB(t)
	themes := testutil.SeedThemes(t, db, "fork", "pin")
	repo := NewCycleRepository(db)
	ctx := context.Background()

	cycle := &models.TrainingCycle{UserID: 1, StartDate: monday, EndDate: monday.AddDate(0, 0, 6), TotalTarget: 105}
	_, err := repo.InsertIfAbsent(ctx, nil, cycle)
	require.NoError(t, err)

	rows := []models.CycleTheme{
		{CycleID: cycle.ID, ThemeID: themes[1].ID, Priority: 1},
		{CycleID: cycle.ID, ThemeID: themes[0].ID, Priority: 2},
	}
	n, err := repo.InsertThemes(ctx, nil, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	again := []models.CycleTheme{{CycleID: cycle.ID, ThemeID: themes[1].ID, Priority: 3}}
	n, err = repo.InsertThemes(ctx, nil, again)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := repo.Themes(ctx, nil, cycle.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Priority)
	assert.Equal(t, "pin", got[0].Theme.Tag())
	assert.Equal(t, "fork", got[1].Theme.Tag())
}

func TestIncrementCompletedOnlyInsideWindow(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewCycleRepository(db)
	ctx := context.Background()

	cycle := &models.TrainingCycle{UserID: 1, StartDate: monday, EndDate: monday.AddDate(0, 0, 6), TotalTarget: 105}
	_, err := repo.InsertIfAbsent(ctx, nil, cycle)
	require.NoError(t, err)

	n, err := repo.IncrementCompleted(ctx, nil, 1, monday.AddDate(0, 0, 6).Add(23*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.IncrementCompleted(ctx, nil, 1, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := repo.Current(ctx, nil, 1, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Completed)
}

func TestPreferencesUpsert(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewCycleRepository(db)
	ctx := context.Background()

	prefs, err := repo.GetPreferences(ctx, nil, 4)
	require.NoError(t, err)
	assert.Nil(t, prefs)

	require.NoError(t, repo.UpsertPreferences(ctx, nil, &models.TrainingPreferences{UserID: 4, PuzzlesPerCycle: 70}))
	require.NoError(t, repo.UpsertPreferences(ctx, nil, &models.TrainingPreferences{UserID: 4, PuzzlesPerCycle: 140}))

	prefs, err = repo.GetPreferences(ctx, nil, 4)
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.Equal(t, 140, prefs.PuzzlesPerCycle)
}

func TestRetryQueueOrdering(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewRetryRepository(db)
	ctx := context.Background()
	at := monday.Add(10 * time.Hour)

	require.NoError(t, repo.RecordFailure(ctx, nil, 1, "a", at))
	require.NoError(t, repo.RecordFailure(ctx, nil, 1, "b", at.Add(-time.Hour)))
	require.NoError(t, repo.RecordFailure(ctx, nil, 1, "c", at.Add(time.Hour)))
	require.NoError(t, repo.RecordFailure(ctx, nil, 1, "c", at.Add(2*time.Hour)))

	next, err := repo.Next(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", next.PuzzleID)
	assert.Equal(t, 2, next.FailCount)

	removed, err := repo.Remove(ctx, nil, 1, "c")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	// equal fail counts: oldest attempt first
	next, err = repo.Next(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", next.PuzzleID)

	count, err := repo.Count(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	empty, err := repo.Next(ctx, nil, 2)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestActiveExerciseCreateIfAbsent(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewExerciseRepository(db)
	ctx := context.Background()

	ex, created, err := repo.CreateIfAbsent(ctx, nil, 1, "X", monday)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "X", ex.PuzzleID)

	ex, created, err = repo.CreateIfAbsent(ctx, nil, 1, "Y", monday)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "X", ex.PuzzleID)

	removed, err := repo.Delete(ctx, nil, 1, "Y")
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)

	removed, err = repo.Delete(ctx, nil, 1, "X")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	ex, err = repo.Get(ctx, nil, 1)
	require.NoError(t, err)
	assert.Nil(t, ex)
}

func TestDailyProgressCounters(t *testing.T) {
	db := testutil.NewUserDB(t)
	repo := NewProgressRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.IncrementDaily(ctx, nil, 1, monday.Add(9*time.Hour), true))
	require.NoError(t, repo.IncrementDaily(ctx, nil, 1, monday.Add(18*time.Hour), true))
	require.NoError(t, repo.IncrementDaily(ctx, nil, 1, monday.Add(20*time.Hour), false))
	require.NoError(t, repo.IncrementDaily(ctx, nil, 1, monday.AddDate(0, 0, 1), false))

	days, err := repo.Daily(ctx, 1, monday)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].Solved)
	assert.Equal(t, 1, days[0].Failed)
	assert.Equal(t, 1, days[1].Failed)

	solved, failed, err := repo.Totals(ctx, 1, monday, monday.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Equal(t, 2, solved)
	assert.Equal(t, 2, failed)

	attempt, err := repo.RecordAttempt(ctx, nil, 1, "X", true, monday)
	require.NoError(t, err)
	recent, err := repo.RecentAttempts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, attempt.ID, recent[0].ID)
}

func TestPurgeRemovesEveryUserRow(t *testing.T) {
	db := testutil.NewUserDB(t)
	themes := testutil.SeedThemes(t, db, "fork")
	ctx := context.Background()

	_, err := NewRatingRepository(db).EnsureRatings(ctx, nil, 1, models.GlobalScope, themes[0].ID)
	require.NoError(t, err)
	_, err = NewRatingRepository(db).EnsureRatings(ctx, nil, 2, models.GlobalScope)
	require.NoError(t, err)
	cycles := NewCycleRepository(db)
	cycle := &models.TrainingCycle{UserID: 1, StartDate: monday, EndDate: monday.AddDate(0, 0, 6), TotalTarget: 105}
	_, err = cycles.InsertIfAbsent(ctx, nil, cycle)
	require.NoError(t, err)
	_, err = cycles.InsertThemes(ctx, nil, []models.CycleTheme{{CycleID: cycle.ID, ThemeID: themes[0].ID, Priority: 1}})
	require.NoError(t, err)
	require.NoError(t, NewRetryRepository(db).RecordFailure(ctx, nil, 1, "X", monday))
	_, _, err = NewExerciseRepository(db).CreateIfAbsent(ctx, nil, 1, "Y", monday)
	require.NoError(t, err)

	removed, err := NewUserDataRepository(db).Purge(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 6, removed)

	var n int64
	require.NoError(t, db.Model(&models.Rating{}).Count(&n).Error)
	assert.EqualValues(t, 1, n, "other users keep their rows")
	require.NoError(t, db.Model(&models.CycleTheme{}).Count(&n).Error)
	assert.Zero(t, n)
}
