package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subforge/internal/subtitle"
)

func sec(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func TestMergeChunkCues_SingleChunkUnchanged(t *testing.T) {
	cues := []subtitle.Cue{
		{Index: 1, Start: sec(1), End: sec(2), Text: "a"},
		{Index: 2, Start: sec(3), End: sec(4), Text: "b"},
	}
	input := []ChunkCues{{
		Chunk: Chunk{Index: 0, Start: 0, End: sec(300)},
		Cues:  cues,
	}}

	first := MergeChunkCues(input, sec(10))
	second := MergeChunkCues(input, sec(10))

	assert.Equal(t, cues, first)
	assert.Equal(t, first, second, "merge must be pure")
}

func TestMergeChunkCues_ShiftsToTrackTime(t *testing.T) {
	results := []ChunkCues{
		{
			Chunk: Chunk{Index: 0, Start: 0, End: sec(600)},
			Cues:  []subtitle.Cue{{Index: 1, Start: sec(5), End: sec(8), Text: "first"}},
		},
		{
			Chunk: Chunk{Index: 1, Start: sec(590), End: sec(1190)},
			Cues:  []subtitle.Cue{{Index: 1, Start: sec(20), End: sec(23), Text: "second"}},
		},
	}

	merged := MergeChunkCues(results, sec(10))
	require.Len(t, merged, 2)

	assert.Equal(t, sec(5), merged[0].Start)
	assert.Equal(t, "first", merged[0].Text)
	assert.Equal(t, sec(610), merged[1].Start)
	assert.Equal(t, sec(613), merged[1].End)
	assert.Equal(t, "second", merged[1].Text)
}

// Two adjacent chunks each transcribe the overlapped speech around
// 595-601s. The first chunk's occurrence intersects its trailing window
// [590, 600] and is dropped; the final chunk keeps its occurrence because
// no trailing-window filter applies to the last chunk.
func TestMergeChunkCues_OverlappedSpeechDeduplicated(t *testing.T) {
	results := []ChunkCues{
		{
			Chunk: Chunk{Index: 0, Start: 0, End: sec(600)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(10), End: sec(12), Text: "early"},
				{Index: 2, Start: sec(595), End: sec(601), Text: "boundary speech"},
			},
		},
		{
			Chunk: Chunk{Index: 1, Start: sec(590), End: sec(1200)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(5), End: sec(11), Text: "boundary speech"},
				{Index: 2, Start: sec(30), End: sec(33), Text: "late"},
			},
		},
	}

	merged := MergeChunkCues(results, sec(10))
	require.Len(t, merged, 3)

	assert.Equal(t, "early", merged[0].Text)
	assert.Equal(t, "boundary speech", merged[1].Text)
	assert.Equal(t, sec(595), merged[1].Start, "survivor comes from the second chunk")
	assert.Equal(t, "late", merged[2].Text)
}

// A single long cue spanning the whole overlap window plus clean middle
// content is dropped wholesale. This is the documented boundary-loss
// behavior, not a bug to fix here.
func TestMergeChunkCues_LongStraddlingCueDroppedWholesale(t *testing.T) {
	results := []ChunkCues{
		{
			Chunk: Chunk{Index: 0, Start: 0, End: sec(600)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(560), End: sec(599), Text: "long straddler"},
			},
		},
		{
			Chunk: Chunk{Index: 1, Start: sec(590), End: sec(700)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(12), End: sec(14), Text: "next chunk"},
			},
		},
	}

	merged := MergeChunkCues(results, sec(10))
	require.Len(t, merged, 1)
	assert.Equal(t, "next chunk", merged[0].Text)
}

func TestMergeChunkCues_SortedAndRenumbered(t *testing.T) {
	results := []ChunkCues{
		{
			Chunk: Chunk{Index: 0, Start: 0, End: sec(600)},
			Cues: []subtitle.Cue{
				{Index: 7, Start: sec(100), End: sec(102), Text: "b"},
				{Index: 3, Start: sec(50), End: sec(52), Text: "a"},
			},
		},
		{
			Chunk: Chunk{Index: 1, Start: sec(590), End: sec(900)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(15), End: sec(17), Text: "c"},
			},
		},
	}

	merged := MergeChunkCues(results, sec(10))
	require.Len(t, merged, 3)

	for i, cue := range merged {
		assert.Equal(t, i+1, cue.Index)
		if i > 0 {
			assert.GreaterOrEqual(t, cue.Start, merged[i-1].Start)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{merged[0].Text, merged[1].Text, merged[2].Text})
}

// No two cues from adjacent chunks may both cover an instant inside the
// first chunk's trailing overlap window.
func TestMergeChunkCues_NoDoubleCoverageInWindow(t *testing.T) {
	overlap := sec(10)
	results := []ChunkCues{
		{
			Chunk: Chunk{Index: 0, Start: 0, End: sec(600)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(585), End: sec(592), Text: "tail"},
			},
		},
		{
			Chunk: Chunk{Index: 1, Start: sec(590), End: sec(1190)},
			Cues: []subtitle.Cue{
				{Index: 1, Start: sec(0), End: sec(4), Text: "head"},
			},
		},
		{
			Chunk: Chunk{Index: 2, Start: sec(1180), End: sec(1200)},
			Cues:  nil,
		},
	}

	merged := MergeChunkCues(results, overlap)
	windowStart, windowEnd := sec(590), sec(600)
	for _, cue := range merged {
		if cue.End > windowStart && cue.Start < windowEnd {
			// only the successor chunk's head may cover the window
			assert.Equal(t, "head", cue.Text)
		}
	}
}

func TestMergeChunkCues_Empty(t *testing.T) {
	assert.Nil(t, MergeChunkCues(nil, sec(10)))
}
