package services

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardService_Record(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	svc := NewLeaderboardService(db)

	mock.ExpectZAdd(leaderboardKey, redis.Z{Score: 1216, Member: "alice"}).SetVal(1)

	require.NoError(t, svc.Record(context.Background(), "alice", 1216))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardService_Top(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	svc := NewLeaderboardService(db)

	mock.ExpectZRevRangeWithScores(leaderboardKey, 0, 2).SetVal([]redis.Z{
		{Score: 1450, Member: "carol"},
		{Score: 1216, Member: "alice"},
		{Score: 1184, Member: "bob"},
	})

	entries, err := svc.Top(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "carol", entries[0].UserID)
	assert.Equal(t, 1450, entries[0].Rating)
	assert.EqualValues(t, 1, entries[0].Rank)
	assert.EqualValues(t, 3, entries[2].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardService_Rank(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	svc := NewLeaderboardService(db)

	mock.ExpectZRevRank(leaderboardKey, "alice").SetVal(1)
	mock.ExpectZScore(leaderboardKey, "alice").SetVal(1216)

	entry, err := svc.Rank(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, entry.Rank)
	assert.Equal(t, 1216, entry.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardService_Rank_Unranked(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	svc := NewLeaderboardService(db)

	mock.ExpectZRevRank(leaderboardKey, "ghost").RedisNil()

	_, err := svc.Rank(context.Background(), "ghost")
	assert.ErrorIs(t, err, redis.Nil)
	assert.NoError(t, mock.ExpectationsWereMet())
}
