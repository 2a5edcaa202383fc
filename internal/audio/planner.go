package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"subforge/internal/media"
	"subforge/pkg/log"
)

// Plan is an ordered chunk sequence plus ownership of the temp directory
// the chunk files live in. Cleanup must run on every exit path of the
// invocation that created the plan.
type Plan struct {
	Chunks  []Chunk
	tempDir string
}

// Cleanup removes the chunk files. A single-chunk plan references the
// original audio file and owns nothing.
func (p *Plan) Cleanup() {
	if p == nil || p.tempDir == "" {
		return
	}
	_ = os.RemoveAll(p.tempDir)
	p.tempDir = ""
}

// Planner splits long audio into overlapping time windows.
type Planner struct {
	extractor media.Extractor
	logger    *log.Logger
}

func NewPlanner(extractor media.Extractor, logger *log.Logger) *Planner {
	return &Planner{
		extractor: extractor,
		logger:    logger,
	}
}

// Plan splits audioPath into chunks of at most chunkLength, each non-final
// chunk sharing its trailing overlap with the head of the next. When the
// whole file fits in one chunk the original file is referenced, no copy.
func (p *Planner) Plan(ctx context.Context, audioPath string, chunkLength, overlap time.Duration) (*Plan, error) {
	if chunkLength <= 0 || overlap < 0 || overlap >= chunkLength {
		return nil, fmt.Errorf("invalid chunking parameters: length=%s overlap=%s", chunkLength, overlap)
	}

	total, err := p.extractor.ProbeDuration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDurationUnavailable, err)
	}

	if total <= chunkLength {
		return &Plan{Chunks: []Chunk{{
			Path:  audioPath,
			Index: 0,
			Start: 0,
			End:   total,
		}}}, nil
	}

	windows := planWindows(total, chunkLength, overlap)
	p.logger.Info("Splitting %s audio into %d chunks of up to %s (overlap %s)",
		total.Round(time.Second), len(windows), chunkLength, overlap)

	tempDir, err := os.MkdirTemp("", "subforge-chunks-*")
	if err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	plan := &Plan{tempDir: tempDir}
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			plan.Cleanup()
			return nil, err
		}

		chunkPath := filepath.Join(tempDir, fmt.Sprintf("chunk-%03d.wav", i))
		if err := p.extractor.ExtractSegment(ctx, audioPath, w.start, w.end, chunkPath); err != nil {
			plan.Cleanup()
			return nil, &ChunkExtractionError{Index: i, Err: err}
		}

		plan.Chunks = append(plan.Chunks, Chunk{
			Path:  chunkPath,
			Index: i,
			Start: w.start,
			End:   w.end,
		})
	}

	return plan, nil
}

type window struct {
	start time.Duration
	end   time.Duration
}

// planWindows computes the chunk boundaries. time.Duration is fixed-point
// (integer nanoseconds), so repeated additions cannot drift.
func planWindows(total, chunkLength, overlap time.Duration) []window {
	var windows []window

	start := time.Duration(0)
	for {
		end := start + chunkLength
		if end > total {
			end = total
		}
		windows = append(windows, window{start: start, end: end})
		if end >= total {
			return windows
		}
		start = end - overlap
	}
}
