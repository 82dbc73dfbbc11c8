package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codementor/internal/model"

	"github.com/stretchr/testify/require"
)

func sampleSnapshot(id string) *model.Snapshot {
	return &model.Snapshot{
		SessionID: id,
		Learners: []model.LearnerSummary{
			{ID: "l_1", Name: "Ana", Code: "print(1)", Task: "print one", Gravatar: "g", Language: "python"},
		},
		Tasks: []model.TaskEntry{
			{TaskID: "t_1", Task: model.Task{TaskID: "t_1", Content: "print one", LearnerIDs: []string{"l_1"}, Language: "python", TimeLimit: 30}},
		},
		Leaderboard: []model.Standing{{Name: "Ana", Score: 8, Speed: 4.2}},
	}
}

func TestFileSnapshotRepoSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	repo := NewFileSnapshotRepo(dir)
	ctx := context.Background()

	loc, err := repo.Save(ctx, sampleSnapshot("ABCD2345"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ABCD2345.json"), loc)

	raw, err := os.ReadFile(loc)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"tasks": [`)

	got, err := repo.Load(ctx, "ABCD2345")
	require.NoError(t, err)
	require.Equal(t, "ABCD2345", got.SessionID)
	require.Equal(t, sampleSnapshot("ABCD2345").Learners, got.Learners)
	require.Equal(t, sampleSnapshot("ABCD2345").Tasks, got.Tasks)
	require.Equal(t, sampleSnapshot("ABCD2345").Leaderboard, got.Leaderboard)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileSnapshotRepoNotFound(t *testing.T) {
	repo := NewFileSnapshotRepo(t.TempDir())
	_, err := repo.Load(context.Background(), "MISSING1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileSnapshotRepoRejectsPathIDs(t *testing.T) {
	repo := NewFileSnapshotRepo(t.TempDir())
	_, err := repo.Save(context.Background(), sampleSnapshot("../escape"))
	require.ErrorIs(t, err, ErrInvalidSnapshotID)
	_, err = repo.Load(context.Background(), "a/b")
	require.ErrorIs(t, err, ErrInvalidSnapshotID)
}

func TestFileSnapshotRepoRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BAD.json"), []byte("{"), 0o644))
	_, err := NewFileSnapshotRepo(dir).Load(context.Background(), "BAD")
	require.ErrorIs(t, err, model.ErrMalformedMessage)
}
