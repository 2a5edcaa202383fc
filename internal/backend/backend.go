// Package backend defines the transcription capability contract. The core
// orchestration depends only on the Transcriber interface; each variant
// owns its wire protocol.
package backend

import (
	"context"

	"subforge/internal/subtitle"
)

// Options is the per-variant options bag a caller may pass along with a
// chunk file. Variants ignore fields they cannot express.
type Options struct {
	// Language is a hint like "en" or "de"; empty lets the backend detect.
	Language string
	// WordTimestamps requests word-level timing where supported.
	WordTimestamps bool
	// VAD toggles voice activity detection pre-filtering.
	VAD bool
	// VADThreshold applies when VAD is on; 0 means backend default.
	VADThreshold float64
	// Prompt is free-text steering for backends that accept one.
	Prompt string
}

// ProgressFunc receives a 0-100 percentage and a short message. Each
// transcription call reports its own internally ordered stream.
type ProgressFunc func(percent float64, message string)

// Identity names a backend variant and its model, for cache keying and
// user-facing messages.
type Identity struct {
	ID    string
	Model string
}

func (id Identity) String() string {
	if id.Model == "" {
		return id.ID
	}
	return id.ID + "/" + id.Model
}

// Transcriber turns a local audio file into subtitle cues with
// chunk-relative times.
type Transcriber interface {
	Identity() Identity
	Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitle.Cue, error)
}
