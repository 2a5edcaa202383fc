package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge/internal/batch"
)

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "subforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := &batch.SubtitleJob{
		ID:         "job-1",
		SourcePath: "/media/a.mkv",
		ClipStart:  90 * time.Second,
		ClipEnd:    150 * time.Second,
		Backend:    "http",
		Status:     batch.StatusPending,
		Progress:   0,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.SourcePath, all[0].SourcePath)
	assert.Equal(t, job.ClipStart, all[0].ClipStart)
	assert.Equal(t, job.ClipEnd, all[0].ClipEnd)
	assert.Equal(t, job.Backend, all[0].Backend)
	assert.Equal(t, job.Status, all[0].Status)
}

func TestSQLiteStore_UpsertUpdatesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "subforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := &batch.SubtitleJob{
		ID:         "job-1",
		SourcePath: "/media/a.mkv",
		Backend:    "http",
		Status:     batch.StatusProcessing,
		Progress:   30,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = batch.StatusCompleted
	job.Progress = 100
	job.OutputPath = "/media/a.srt"
	job.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, batch.StatusCompleted, all[0].Status)
	assert.Equal(t, 100.0, all[0].Progress)
	assert.Equal(t, "/media/a.srt", all[0].OutputPath)
}

func TestSQLiteStore_LoadOrdersByCreation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "subforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"job-c", "job-a", "job-b"} {
		require.NoError(t, store.UpsertJob(ctx, &batch.SubtitleJob{
			ID:         id,
			SourcePath: "/media/" + id + ".mkv",
			Backend:    "http",
			Status:     batch.StatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			UpdatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-c", all[0].ID)
	assert.Equal(t, "job-a", all[1].ID)
	assert.Equal(t, "job-b", all[2].ID)
}

func TestSQLiteStore_DeleteJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "subforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.UpsertJob(ctx, &batch.SubtitleJob{
		ID:         "job-1",
		SourcePath: "/media/a.mkv",
		Backend:    "http",
		Status:     batch.StatusFailed,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	require.NoError(t, store.DeleteJob(ctx, "job-1"), "deleting a missing job is not an error")

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewSQLiteStore("  ")
	require.Error(t, err)
}
