package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "leaderboard:rating"

// LeaderboardEntry is one row of the rating leaderboard. Rank is 1-based.
type LeaderboardEntry struct {
	UserID string `json:"user_id"`
	Rating int    `json:"rating"`
	Rank   int64  `json:"rank"`
}

// LeaderboardService mirrors settled ratings into a Redis sorted set for
// cheap top-N and rank reads. The store remains the source of truth; the
// set is rebuilt from user_debate_stats if it is ever lost.
type LeaderboardService struct {
	redis *redis.Client
}

func NewLeaderboardService(redisClient *redis.Client) *LeaderboardService {
	return &LeaderboardService{redis: redisClient}
}

// Record upserts a user's rating.
func (s *LeaderboardService) Record(ctx context.Context, userID string, rating int) error {
	if err := s.redis.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(rating),
		Member: userID,
	}).Err(); err != nil {
		return fmt.Errorf("leaderboard record %s: %w", userID, err)
	}
	return nil
}

// Top returns the n highest-rated users.
func (s *LeaderboardService) Top(ctx context.Context, n int64) ([]LeaderboardEntry, error) {
	rows, err := s.redis.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		userID, _ := row.Member.(string)
		entries = append(entries, LeaderboardEntry{
			UserID: userID,
			Rating: int(row.Score),
			Rank:   int64(i) + 1,
		})
	}
	return entries, nil
}

// Rank returns one user's row, or redis.Nil if they are unranked.
func (s *LeaderboardService) Rank(ctx context.Context, userID string) (*LeaderboardEntry, error) {
	rank, err := s.redis.ZRevRank(ctx, leaderboardKey, userID).Result()
	if err != nil {
		return nil, err
	}
	score, err := s.redis.ZScore(ctx, leaderboardKey, userID).Result()
	if err != nil {
		return nil, err
	}

	return &LeaderboardEntry{UserID: userID, Rating: int(score), Rank: rank + 1}, nil
}

// Remove drops a user from the board.
func (s *LeaderboardService) Remove(ctx context.Context, userID string) error {
	return s.redis.ZRem(ctx, leaderboardKey, userID).Err()
}
