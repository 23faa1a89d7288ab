package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"puzzletrainer/internal/models"
	"puzzletrainer/internal/repository"
)

const (
	weakestThemesShown  = 5
	recentAttemptsShown = 10
)

// DayCounts is a solved/failed pair.
type DayCounts struct {
	Solved int `json:"solved"`
	Failed int `json:"failed"`
}

// ProgressSummary is the user's training overview.
type ProgressSummary struct {
	Cycle           *CycleSummary            `json:"cycle"`
	Today           DayCounts                `json:"today"`
	Week            DayCounts                `json:"week"`
	Days            []models.DailyProgress   `json:"days"`
	RecentAttempts  []models.PuzzleAttempt   `json:"recentAttempts"`
	GlobalRating    int                      `json:"globalRating"`
	GamesPlayed     int                      `json:"gamesPlayed"`
	WeakestThemes   []repository.ThemeRating `json:"weakestThemes"`
	RetryQueueSize  int64                    `json:"retryQueueSize"`
	LeaderboardRank int                      `json:"leaderboardRank"`
}

// ProgressService builds progress summaries. It never writes.
type ProgressService struct {
	cycles      *repository.CycleRepository
	ratings     *repository.RatingRepository
	retries     *repository.RetryRepository
	progress    *repository.ProgressRepository
	leaderboard *LeaderboardService
	now         func() time.Time
}

// NewProgressService creates a new progress service.
func NewProgressService(
	cycles *repository.CycleRepository,
	ratings *repository.RatingRepository,
	retries *repository.RetryRepository,
	progress *repository.ProgressRepository,
	leaderboard *LeaderboardService,
	now func() time.Time,
) *ProgressService {
	if now == nil {
		now = time.Now
	}
	return &ProgressService{
		cycles:      cycles,
		ratings:     ratings,
		retries:     retries,
		progress:    progress,
		leaderboard: leaderboard,
		now:         now,
	}
}

// GetSummary loads the independent parts of the summary concurrently.
func (s *ProgressService) GetSummary(ctx context.Context, userID uint) (*ProgressSummary, error) {
	now := s.now()
	weekStart, weekEnd := WeekWindow(now)
	out := &ProgressSummary{GlobalRating: models.DefaultRating}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cycle, err := s.cycles.Current(gctx, nil, userID, now)
		if err != nil || cycle == nil {
			return err
		}
		summary := summarizeCycle(cycle)
		out.Cycle = &summary
		return nil
	})
	g.Go(func() error {
		solved, failed, err := s.progress.Totals(gctx, userID, now, now)
		out.Today = DayCounts{Solved: solved, Failed: failed}
		return err
	})
	g.Go(func() error {
		solved, failed, err := s.progress.Totals(gctx, userID, weekStart, weekEnd)
		out.Week = DayCounts{Solved: solved, Failed: failed}
		return err
	})
	g.Go(func() error {
		days, err := s.progress.Daily(gctx, userID, weekStart)
		out.Days = days
		return err
	})
	g.Go(func() error {
		recent, err := s.progress.RecentAttempts(gctx, userID, recentAttemptsShown)
		out.RecentAttempts = recent
		return err
	})
	g.Go(func() error {
		global, err := s.ratings.Get(gctx, nil, userID, models.GlobalScope)
		if err != nil || global == nil {
			return err
		}
		out.GlobalRating = global.Value
		out.GamesPlayed = global.GamesPlayed
		return nil
	})
	g.Go(func() error {
		weakest, err := s.ratings.ThemeRatings(gctx, nil, userID, weakestThemesShown)
		out.WeakestThemes = weakest
		return err
	})
	g.Go(func() error {
		n, err := s.retries.Count(gctx, userID)
		out.RetryQueueSize = n
		return err
	})
	if s.leaderboard != nil {
		g.Go(func() error {
			rank, err := s.leaderboard.GetUserRank(gctx, userID)
			out.LeaderboardRank = rank
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.WeakestThemes == nil {
		out.WeakestThemes = []repository.ThemeRating{}
	}
	if out.Days == nil {
		out.Days = []models.DailyProgress{}
	}
	if out.RecentAttempts == nil {
		out.RecentAttempts = []models.PuzzleAttempt{}
	}
	return out, nil
}
