package audio

import (
	"errors"
	"fmt"
	"time"

	"subforge/internal/subtitle"
)

// Chunk is one bounded time window of source audio, materialized as a file
// the chunk's plan owns. For non-final chunks the next chunk starts
// overlap before this chunk ends.
type Chunk struct {
	Path  string
	Index int
	Start time.Duration
	End   time.Duration
}

func (c Chunk) Duration() time.Duration {
	return c.End - c.Start
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d [%s - %s]",
		c.Index,
		subtitle.FormatTimestamp(c.Start),
		subtitle.FormatTimestamp(c.End))
}

// ChunkCues pairs a chunk with the cues a backend produced for it. Cue
// times are chunk-relative until merged.
type ChunkCues struct {
	Chunk Chunk
	Cues  []subtitle.Cue
}

// ErrDurationUnavailable is returned when no probing method can determine
// the audio duration.
var ErrDurationUnavailable = errors.New("audio duration unavailable")

// ChunkExtractionError reports a failed materialization of one chunk. The
// whole plan is aborted and partial files are removed before it propagates.
type ChunkExtractionError struct {
	Index int
	Err   error
}

func (e *ChunkExtractionError) Error() string {
	return fmt.Sprintf("extract chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkExtractionError) Unwrap() error {
	return e.Err
}
