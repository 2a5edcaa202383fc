package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge/pkg/log"
)

type fakeExtractor struct {
	duration    time.Duration
	probeErr    error
	failAtIndex int // -1 disables failure injection
	segments    int
}

func newFakeExtractor(duration time.Duration) *fakeExtractor {
	return &fakeExtractor{duration: duration, failAtIndex: -1}
}

func (f *fakeExtractor) ExtractWhole(_ context.Context, _, outDir string) (string, error) {
	path := filepath.Join(outDir, "audio.wav")
	return path, os.WriteFile(path, []byte("wav"), 0644)
}

func (f *fakeExtractor) ExtractRange(_ context.Context, _ string, _, _ time.Duration, outDir string) (string, error) {
	path := filepath.Join(outDir, "clip.wav")
	return path, os.WriteFile(path, []byte("wav"), 0644)
}

func (f *fakeExtractor) ExtractSegment(_ context.Context, _ string, _, _ time.Duration, outPath string) error {
	if f.failAtIndex >= 0 && f.segments == f.failAtIndex {
		return errors.New("boom")
	}
	f.segments++
	return os.WriteFile(outPath, []byte("wav"), 0644)
}

func (f *fakeExtractor) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.duration, nil
}

func testLogger() *log.Logger {
	return log.NewWriterLogger(io.Discard, log.LevelError)
}

func TestPlan_SingleChunkReusesSource(t *testing.T) {
	extractor := newFakeExtractor(5 * time.Minute)
	planner := NewPlanner(extractor, testLogger())

	plan, err := planner.Plan(context.Background(), "/audio/short.wav", 10*time.Minute, 10*time.Second)
	require.NoError(t, err)
	defer plan.Cleanup()

	require.Len(t, plan.Chunks, 1)
	assert.Equal(t, "/audio/short.wav", plan.Chunks[0].Path)
	assert.Equal(t, time.Duration(0), plan.Chunks[0].Start)
	assert.Equal(t, 5*time.Minute, plan.Chunks[0].End)
	assert.Zero(t, extractor.segments, "single chunk must not copy audio")
}

func TestPlan_TwentyMinuteAudio(t *testing.T) {
	extractor := newFakeExtractor(20 * time.Minute)
	planner := NewPlanner(extractor, testLogger())

	plan, err := planner.Plan(context.Background(), "/audio/long.wav", 600*time.Second, 10*time.Second)
	require.NoError(t, err)
	defer plan.Cleanup()

	require.Len(t, plan.Chunks, 3)

	assert.Equal(t, time.Duration(0), plan.Chunks[0].Start)
	assert.Equal(t, 600*time.Second, plan.Chunks[0].End)
	assert.Equal(t, 590*time.Second, plan.Chunks[1].Start)
	assert.Equal(t, 1190*time.Second, plan.Chunks[1].End)
	assert.Equal(t, 1180*time.Second, plan.Chunks[2].Start)
	assert.Equal(t, 1200*time.Second, plan.Chunks[2].End)

	for _, chunk := range plan.Chunks {
		assert.FileExists(t, chunk.Path)
	}
}

func TestPlan_WindowInvariants(t *testing.T) {
	tests := []struct {
		name    string
		total   time.Duration
		length  time.Duration
		overlap time.Duration
	}{
		{name: "exact multiple", total: 30 * time.Minute, length: 10 * time.Minute, overlap: 15 * time.Second},
		{name: "ragged tail", total: 47*time.Minute + 13*time.Second, length: 10 * time.Minute, overlap: 10 * time.Second},
		{name: "barely over one chunk", total: 601 * time.Second, length: 600 * time.Second, overlap: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := planWindows(tt.total, tt.length, tt.overlap)
			require.NotEmpty(t, windows)

			for i, w := range windows {
				assert.LessOrEqual(t, w.end-w.start, tt.length)
				if i > 0 {
					assert.Equal(t, windows[i-1].end-tt.overlap, w.start)
				}
			}
			assert.Equal(t, tt.total, windows[len(windows)-1].end)
		})
	}
}

func TestPlan_DurationUnavailable(t *testing.T) {
	extractor := newFakeExtractor(0)
	extractor.probeErr = errors.New("no streams")
	planner := NewPlanner(extractor, testLogger())

	_, err := planner.Plan(context.Background(), "/audio/bad.wav", time.Minute, time.Second)
	require.ErrorIs(t, err, ErrDurationUnavailable)
}

func TestPlan_ExtractionFailureAbortsAndCleans(t *testing.T) {
	extractor := newFakeExtractor(20 * time.Minute)
	extractor.failAtIndex = 1
	planner := NewPlanner(extractor, testLogger())

	_, err := planner.Plan(context.Background(), "/audio/long.wav", 600*time.Second, 10*time.Second)
	require.Error(t, err)

	var extractErr *ChunkExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, 1, extractErr.Index)
}

func TestPlan_RejectsBadParameters(t *testing.T) {
	planner := NewPlanner(newFakeExtractor(time.Hour), testLogger())

	_, err := planner.Plan(context.Background(), "/audio/a.wav", 0, 0)
	require.Error(t, err)

	// overlap >= chunk length would never terminate
	_, err = planner.Plan(context.Background(), "/audio/a.wav", 10*time.Second, 10*time.Second)
	require.Error(t, err)
}

func TestPlan_CancelledContext(t *testing.T) {
	planner := NewPlanner(newFakeExtractor(20*time.Minute), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := planner.Plan(ctx, "/audio/long.wav", 600*time.Second, 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
