package service

import (
	"context"

	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/repository"
)

// LeaderboardService handles the rating leaderboard (Redis with DB fallback).
type LeaderboardService struct {
	ratingRepo      *repository.RatingRepository
	leaderboardRepo *repository.LeaderboardRepository
	log             *logger.Logger
}

// NewLeaderboardService creates a new leaderboard service. leaderboardRepo may be nil.
func NewLeaderboardService(ratingRepo *repository.RatingRepository, leaderboardRepo *repository.LeaderboardRepository, log *logger.Logger) *LeaderboardService {
	return &LeaderboardService{
		ratingRepo:      ratingRepo,
		leaderboardRepo: leaderboardRepo,
		log:             log.With("component", "leaderboard"),
	}
}

// GetTop returns leaderboard entries (userId, rating, rank) from Redis; fallback to DB.
func (s *LeaderboardService) GetTop(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	if s.leaderboardRepo != nil {
		entries, err := s.leaderboardRepo.GetTop(ctx, int64(limit))
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			s.log.Warn("leaderboard read failed, using database", "error", err)
		}
	}
	rows, err := s.ratingRepo.TopGlobal(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]repository.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = repository.LeaderboardEntry{UserID: r.UserID, Rating: r.Value, Rank: int64(i + 1)}
	}
	return entries, nil
}

// GetUserRank gets the user's rank by global rating, 0 when unranked.
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID uint) (int, error) {
	if s.leaderboardRepo != nil {
		rank, err := s.leaderboardRepo.GetUserRank(ctx, userID)
		if err == nil && rank > 0 {
			return int(rank), nil
		}
	}
	return s.ratingRepo.GlobalRank(ctx, userID)
}

// Rebuild copies every global rating from the database into Redis.
func (s *LeaderboardService) Rebuild(ctx context.Context) (int, error) {
	if s.leaderboardRepo == nil {
		return 0, nil
	}
	ids, err := s.ratingRepo.UsersWithGlobalRating(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	rows, err := s.ratingRepo.TopGlobal(ctx, len(ids))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	pipe := s.leaderboardRepo.Pipeline()
	for _, r := range rows {
		s.leaderboardRepo.QueueUpdateRating(ctx, pipe, r.UserID, r.Value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Remove drops the user from the Redis leaderboard.
func (s *LeaderboardService) Remove(ctx context.Context, userID uint) error {
	if s.leaderboardRepo == nil {
		return nil
	}
	return s.leaderboardRepo.Remove(ctx, userID)
}
