package batch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge/pkg/log"
)

func testLogger() *log.Logger {
	return log.NewWriterLogger(io.Discard, log.LevelError)
}

func okExecutor(out string) Executor {
	return func(_ context.Context, _ SubtitleJob, _ func(float64, string)) (string, error) {
		return out, nil
	}
}

func request(source string) EnqueueRequest {
	return EnqueueRequest{SourcePath: source, Backend: "http"}
}

func TestCoordinator_Enqueue_DeduplicatesEquivalentJobs(t *testing.T) {
	c := NewCoordinator(okExecutor("out.srt"), nil, testLogger())

	jobA, createdA := c.Enqueue(EnqueueRequest{SourcePath: "/media/ep1.mkv", Backend: "http"})
	jobB, createdB := c.Enqueue(EnqueueRequest{SourcePath: "/media/ep1.mkv", Backend: "http"})

	require.True(t, createdA)
	require.False(t, createdB)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.Len(t, c.List(), 1)
}

func TestCoordinator_Enqueue_ClipAndBackendDistinguishJobs(t *testing.T) {
	c := NewCoordinator(okExecutor("out.srt"), nil, testLogger())

	_, created := c.Enqueue(EnqueueRequest{SourcePath: "/media/ep1.mkv", Backend: "http"})
	require.True(t, created)

	_, created = c.Enqueue(EnqueueRequest{
		SourcePath: "/media/ep1.mkv",
		ClipStart:  time.Minute,
		ClipEnd:    2 * time.Minute,
		Backend:    "http",
	})
	require.True(t, created, "clipped job must not dedupe against the whole-file job")

	_, created = c.Enqueue(EnqueueRequest{SourcePath: "/media/ep1.mkv", Backend: "whisper-local"})
	require.True(t, created, "a different backend must not dedupe")

	assert.Len(t, c.List(), 3)
}

func TestCoordinator_Start_EmptyQueue(t *testing.T) {
	c := NewCoordinator(okExecutor("out.srt"), nil, testLogger())
	require.ErrorIs(t, c.Start(), ErrEmptyQueue)
}

func TestCoordinator_Start_AlreadyRunning(t *testing.T) {
	release := make(chan struct{})
	c := NewCoordinator(func(_ context.Context, _ SubtitleJob, _ func(float64, string)) (string, error) {
		<-release
		return "out.srt", nil
	}, nil, testLogger())

	c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.Start())
	require.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	close(release)
	c.Wait()
	assert.False(t, c.Running())
}

func TestCoordinator_RunsJobsSequentially(t *testing.T) {
	var mu sync.Mutex
	var inFlight, maxInFlight int
	var order []string

	c := NewCoordinator(func(_ context.Context, job SubtitleJob, _ func(float64, string)) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		order = append(order, job.SourcePath)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return job.SourcePath + ".srt", nil
	}, nil, testLogger())

	c.Enqueue(request("/media/a.mkv"))
	c.Enqueue(request("/media/b.mkv"))
	c.Enqueue(request("/media/c.mkv"))

	require.NoError(t, c.Start())
	c.Wait()

	assert.Equal(t, 1, maxInFlight, "jobs must never overlap")
	assert.Equal(t, []string{"/media/a.mkv", "/media/b.mkv", "/media/c.mkv"}, order)

	counters := c.Counters()
	assert.Equal(t, 3, counters.Total)
	assert.Equal(t, 3, counters.Completed)
}

func TestCoordinator_JobFailureHaltsBatch(t *testing.T) {
	c := NewCoordinator(func(_ context.Context, job SubtitleJob, _ func(float64, string)) (string, error) {
		if job.SourcePath == "/media/bad.mkv" {
			return "", errors.New("backend rejected the audio")
		}
		return job.SourcePath + ".srt", nil
	}, nil, testLogger())

	c.Enqueue(request("/media/bad.mkv"))
	second, _ := c.Enqueue(request("/media/good.mkv"))

	require.NoError(t, c.Start())
	c.Wait()

	counters := c.Counters()
	assert.Equal(t, 1, counters.Failed)
	assert.Equal(t, 1, counters.Pending, "queued jobs stay pending after a failure")

	got, ok := c.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)

	// a fresh start picks the remaining job back up
	require.NoError(t, c.Start())
	c.Wait()

	got, ok = c.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/media/good.mkv.srt", got.OutputPath)
}

func TestCoordinator_FailedJobRecordsMessage(t *testing.T) {
	c := NewCoordinator(func(_ context.Context, _ SubtitleJob, _ func(float64, string)) (string, error) {
		return "", errors.New("transcription of chunk 2 failed")
	}, nil, testLogger())

	job, _ := c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.Start())
	c.Wait()

	got, ok := c.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "subtitle generation failed")
	assert.Contains(t, got.Error, "chunk 2")
}

func TestCoordinator_CancelHaltsBatch(t *testing.T) {
	started := make(chan struct{})
	c := NewCoordinator(func(ctx context.Context, _ SubtitleJob, _ func(float64, string)) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}, nil, testLogger())

	first, _ := c.Enqueue(request("/media/a.mkv"))
	second, _ := c.Enqueue(request("/media/b.mkv"))

	require.NoError(t, c.Start())
	<-started
	c.Cancel()
	c.Wait()

	got, ok := c.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, got.Status)

	got, ok = c.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status, "cancellation halts the batch instead of advancing")
	assert.False(t, c.Running())
}

func TestCoordinator_ProgressIsMonotonicAndCapped(t *testing.T) {
	c := NewCoordinator(func(_ context.Context, _ SubtitleJob, progress func(float64, string)) (string, error) {
		progress(40, "")
		progress(30, "late chunk update")
		progress(150, "")
		return "out.srt", nil
	}, nil, testLogger())

	job, _ := c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.Start())
	c.Wait()

	got, ok := c.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
}

func TestCoordinator_EnqueueAfterCompletionCreatesNewJob(t *testing.T) {
	c := NewCoordinator(okExecutor("out.srt"), nil, testLogger())

	first, created := c.Enqueue(request("/media/a.mkv"))
	require.True(t, created)
	require.NoError(t, c.Start())
	c.Wait()

	second, created := c.Enqueue(request("/media/a.mkv"))
	require.True(t, created, "terminal jobs release their dedupe slot")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCoordinator_RemoveJob(t *testing.T) {
	c := NewCoordinator(okExecutor("out.srt"), nil, testLogger())

	job, _ := c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.RemoveJob(job.ID))
	require.ErrorIs(t, c.RemoveJob(job.ID), ErrJobNotFound)
	assert.Empty(t, c.List())

	// the slot is free again
	_, created := c.Enqueue(request("/media/a.mkv"))
	assert.True(t, created)
}

func TestCoordinator_RemoveJob_RejectsProcessing(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c := NewCoordinator(func(_ context.Context, _ SubtitleJob, _ func(float64, string)) (string, error) {
		close(started)
		<-release
		return "out.srt", nil
	}, nil, testLogger())

	job, _ := c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.Start())
	<-started

	require.ErrorIs(t, c.RemoveJob(job.ID), ErrJobProcessing)

	close(release)
	c.Wait()
	require.NoError(t, c.RemoveJob(job.ID))
}

func TestCoordinator_ClearAndRemoveByStatus(t *testing.T) {
	c := NewCoordinator(func(_ context.Context, job SubtitleJob, _ func(float64, string)) (string, error) {
		if job.SourcePath == "/media/bad.mkv" {
			return "", assert.AnError
		}
		return "out.srt", nil
	}, nil, testLogger())

	c.Enqueue(request("/media/good.mkv"))
	c.Enqueue(request("/media/bad.mkv"))
	c.Enqueue(request("/media/later.mkv"))

	require.NoError(t, c.Start())
	c.Wait()
	// good completed, bad failed, later still pending
	require.NoError(t, c.Start())
	c.Wait()

	assert.Equal(t, 1, c.RemoveByStatus(StatusFailed))
	assert.Equal(t, 0, c.RemoveByStatus(StatusFailed))
	assert.Len(t, c.List(), 2)

	assert.Equal(t, 2, c.Clear())
	assert.Empty(t, c.List())
	assert.Equal(t, Counters{}, c.Counters())
}

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*SubtitleJob
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*SubtitleJob)}
}

func (m *memoryStore) LoadJobs(_ context.Context) ([]*SubtitleJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*SubtitleJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		ret = append(ret, cloneJob(job))
	}
	return ret, nil
}

func (m *memoryStore) UpsertJob(_ context.Context, job *SubtitleJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func TestCoordinator_HydratesFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	require.NoError(t, store.UpsertJob(context.Background(), &SubtitleJob{
		ID:         "job-a",
		SourcePath: "/media/a.mkv",
		Backend:    "http",
		Status:     StatusProcessing,
		Progress:   42,
		CreatedAt:  now.Add(-time.Minute),
		UpdatedAt:  now.Add(-time.Minute),
	}))
	require.NoError(t, store.UpsertJob(context.Background(), &SubtitleJob{
		ID:         "job-b",
		SourcePath: "/media/b.mkv",
		Backend:    "http",
		Status:     StatusCompleted,
		Progress:   100,
		OutputPath: "/media/b.srt",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	c := NewCoordinator(okExecutor("out.srt"), store, testLogger())

	jobs := c.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-a", jobs[0].ID, "hydration preserves creation order")

	got, ok := c.Get("job-a")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status, "interrupted jobs restart from scratch")
	assert.Equal(t, 0.0, got.Progress)

	// an equivalent enqueue dedupes against the rehydrated pending job
	_, created := c.Enqueue(EnqueueRequest{SourcePath: "/media/a.mkv", Backend: "http"})
	assert.False(t, created)

	// the completed job does not hold a dedupe slot
	_, created = c.Enqueue(EnqueueRequest{SourcePath: "/media/b.mkv", Backend: "http"})
	assert.True(t, created)
}

func TestCoordinator_PersistsTerminalStates(t *testing.T) {
	store := newMemoryStore()
	c := NewCoordinator(okExecutor("/media/a.srt"), store, testLogger())

	job, _ := c.Enqueue(request("/media/a.mkv"))
	require.NoError(t, c.Start())
	c.Wait()

	store.mu.Lock()
	persisted := store.jobs[job.ID]
	store.mu.Unlock()

	require.NotNil(t, persisted)
	assert.Equal(t, StatusCompleted, persisted.Status)
	assert.Equal(t, "/media/a.srt", persisted.OutputPath)
}
