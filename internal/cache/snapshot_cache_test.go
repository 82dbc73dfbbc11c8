package cache

import (
	"context"
	"testing"
	"time"

	"codementor/internal/model"
	"codementor/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCacheSaveAndLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := NewSnapshotCache(client, time.Hour)
	ctx := context.Background()

	snap := &model.Snapshot{
		SessionID:   "S1",
		Learners:    []model.LearnerSummary{{ID: "l1", Name: "Ana"}},
		Tasks:       []model.TaskEntry{{TaskID: "t1", Task: model.Task{TaskID: "t1", Content: "sum", LearnerIDs: []string{"l1"}, TimeLimit: 30}}},
		Leaderboard: []model.Standing{{Name: "Ana", Score: 4, Speed: 2}},
	}
	location, err := repo.Save(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, "redis://session:S1:snapshot", location)
	require.Equal(t, time.Hour, mr.TTL("session:S1:snapshot"))

	got, err := repo.Load(ctx, "S1")
	require.NoError(t, err)
	require.Equal(t, "S1", got.SessionID)
	require.Equal(t, snap.Learners, got.Learners)
	require.Equal(t, snap.Tasks, got.Tasks)
	require.Equal(t, snap.Leaderboard, got.Leaderboard)

	mr.FastForward(2 * time.Hour)
	_, err = repo.Load(ctx, "S1")
	require.ErrorIs(t, err, repository.ErrSnapshotNotFound)

	_, err = repo.Save(ctx, &model.Snapshot{})
	require.ErrorIs(t, err, repository.ErrInvalidSnapshotID)
}
