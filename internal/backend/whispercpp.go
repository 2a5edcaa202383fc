package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"subforge/internal/subtitle"
	"subforge/pkg/file"
	"subforge/pkg/log"
)

// WhisperCPPConfig configures the local batch-inference executable.
type WhisperCPPConfig struct {
	// BinaryPath is the whisper.cpp main binary; "whisper-cli" by default.
	BinaryPath string
	// ModelPath points at the ggml model file.
	ModelPath string
	// Threads is passed through when > 0.
	Threads int
}

// WhisperCPP runs a local whisper.cpp binary that writes an .srt next to
// the input, then parses that file.
type WhisperCPP struct {
	cfg    WhisperCPPConfig
	logger *log.Logger
}

func NewWhisperCPP(cfg WhisperCPPConfig, logger *log.Logger) (*WhisperCPP, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "whisper-cli"
	}
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}
	return &WhisperCPP{cfg: cfg, logger: logger}, nil
}

func (b *WhisperCPP) Identity() Identity {
	return Identity{ID: "whisper-local", Model: filepath.Base(b.cfg.ModelPath)}
}

func (b *WhisperCPP) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitle.Cue, error) {
	report := func(pct float64, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	binary, err := exec.LookPath(b.cfg.BinaryPath)
	if err != nil {
		return nil, &Error{Backend: "whisper-local", Message: fmt.Sprintf("binary not found: %v", err)}
	}
	if _, err := os.Stat(b.cfg.ModelPath); err != nil {
		return nil, &Error{Backend: "whisper-local", Message: fmt.Sprintf("model not found: %v", err)}
	}

	outPrefix := file.ReplaceExt(audioPath, "")
	srtPath := outPrefix + ".srt"

	args := []string{
		"-m", b.cfg.ModelPath,
		"-f", audioPath,
		"--output-srt",
		"--output-file", outPrefix,
	}
	if opts.Language != "" {
		args = append(args, "-l", opts.Language)
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt)
	}
	if opts.VAD {
		args = append(args, "--vad")
		if opts.VADThreshold > 0 {
			args = append(args, "--vad-threshold", strconv.FormatFloat(opts.VADThreshold, 'f', 2, 64))
		}
	}
	if b.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.cfg.Threads))
	}

	report(5, "running local inference")
	b.logger.Debug("Running %s %s", binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			Backend: "whisper-local",
			Message: fmt.Sprintf("inference failed: %v: %s", err, truncateForError(output)),
		}
	}
	defer os.Remove(srtPath)

	report(90, "parsing transcript")

	cues, err := subtitle.ReadFile(srtPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultUnparseable, err)
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("%w: empty transcript", ErrResultUnparseable)
	}

	report(100, "transcription complete")
	return cues, nil
}
