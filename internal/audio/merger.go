package audio

import (
	"sort"
	"time"

	"subforge/internal/subtitle"
)

// MergeChunkCues reassembles per-chunk cues into one track-relative,
// ordered, renumbered cue list. results must be in chunk order.
//
// Backends time cues relative to the chunk file, so each chunk's cues are
// shifted by the chunk's start. For every chunk except the last, any
// shifted cue touching the chunk's trailing overlap window is dropped
// wholesale: the overlapped audio is re-transcribed at the head of the
// next chunk, which supplies that region's content. A long cue straddling
// the window is dropped entirely, never truncated, even when that loses
// speech from before the window.
func MergeChunkCues(results []ChunkCues, overlap time.Duration) []subtitle.Cue {
	if len(results) == 0 {
		return nil
	}
	if len(results) == 1 {
		return results[0].Cues
	}

	var merged []subtitle.Cue
	for i, result := range results {
		isLast := i == len(results)-1
		windowStart := result.Chunk.End - overlap
		windowEnd := result.Chunk.End

		for _, cue := range result.Cues {
			shifted := cue.Shift(result.Chunk.Start)
			if !isLast && shifted.End > windowStart && shifted.Start < windowEnd {
				continue
			}
			merged = append(merged, shifted)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Start < merged[j].Start
	})
	subtitle.Renumber(merged)

	return merged
}
