package repository

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// LeaderboardRatingKey is the sorted set of global ratings.
const LeaderboardRatingKey = "leaderboard:rating"

// LeaderboardEntry represents a rating leaderboard entry
type LeaderboardEntry struct {
	UserID uint  `json:"userId"`
	Rating int   `json:"rating"`
	Rank   int64 `json:"rank"`
}

// LeaderboardRepository handles Redis ZSet operations for the rating leaderboard
type LeaderboardRepository struct {
	client *redis.Client
}

// NewLeaderboardRepository creates a new leaderboard repository
func NewLeaderboardRepository(client *redis.Client) *LeaderboardRepository {
	return &LeaderboardRepository{client: client}
}

// UpdateRating stores the user's global rating in the ZSet
func (r *LeaderboardRepository) UpdateRating(ctx context.Context, userID uint, value int) error {
	return r.client.ZAdd(ctx, LeaderboardRatingKey, redis.Z{
		Score:  float64(value),
		Member: strconv.FormatUint(uint64(userID), 10),
	}).Err()
}

// Remove drops the user from the leaderboard
func (r *LeaderboardRepository) Remove(ctx context.Context, userID uint) error {
	return r.client.ZRem(ctx, LeaderboardRatingKey, strconv.FormatUint(uint64(userID), 10)).Err()
}

// GetTop returns top N users by rating
func (r *LeaderboardRepository) GetTop(ctx context.Context, limit int64) ([]LeaderboardEntry, error) {
	// ZREVRANGE returns highest to lowest
	results, err := r.client.ZRevRangeWithScores(ctx, LeaderboardRatingKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for _, result := range results {
		member, ok := result.Member.(string)
		if !ok {
			continue
		}
		userID, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID: uint(userID),
			Rating: int(result.Score),
		})
	}
	for i := range entries {
		entries[i].Rank = int64(i) + 1
	}
	return entries, nil
}

// GetUserRank returns user's rank (1-indexed, 0 if not found)
func (r *LeaderboardRepository) GetUserRank(ctx context.Context, userID uint) (int64, error) {
	rank, err := r.client.ZRevRank(ctx, LeaderboardRatingKey, strconv.FormatUint(uint64(userID), 10)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

// Pipeline returns a new pipeline for batching Redis commands (one round-trip).
func (r *LeaderboardRepository) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

// QueueUpdateRating queues ZADD for the rating leaderboard; call Exec on the pipeline to run.
func (r *LeaderboardRepository) QueueUpdateRating(ctx context.Context, pipe redis.Pipeliner, userID uint, value int) {
	pipe.ZAdd(ctx, LeaderboardRatingKey, redis.Z{
		Score:  float64(value),
		Member: strconv.FormatUint(uint64(userID), 10),
	})
}
