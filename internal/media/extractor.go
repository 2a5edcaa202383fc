package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"subforge/pkg/file"
	"subforge/pkg/log"
)

// Extractor produces mono 16kHz 16-bit PCM WAV audio from media files.
// All methods treat a nonzero exit or a missing output file as failure.
type Extractor interface {
	// ExtractWhole extracts the full audio track of mediaPath into outDir.
	ExtractWhole(ctx context.Context, mediaPath, outDir string) (string, error)
	// ExtractRange extracts audio for the [start, end) clip of mediaPath.
	ExtractRange(ctx context.Context, mediaPath string, start, end time.Duration, outDir string) (string, error)
	// ExtractSegment cuts [start, end) out of an already extracted WAV.
	ExtractSegment(ctx context.Context, audioPath string, start, end time.Duration, outPath string) error
	// ProbeDuration reports the duration of audioPath.
	ProbeDuration(ctx context.Context, audioPath string) (time.Duration, error)
}

// FFmpeg implements Extractor by shelling out to ffmpeg/ffprobe.
type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	logger     *log.Logger
}

func NewFFmpeg(logger *log.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		logger:     logger,
	}
}

// NewFFmpegWithCommands overrides the binary names, for configs pointing at
// non-PATH installs.
func NewFFmpegWithCommands(ffmpegCmd, ffprobeCmd string, logger *log.Logger) *FFmpeg {
	return &FFmpeg{
		ffmpegCmd:  ffmpegCmd,
		ffprobeCmd: ffprobeCmd,
		logger:     logger,
	}
}

func (f *FFmpeg) ExtractWhole(ctx context.Context, mediaPath, outDir string) (string, error) {
	output := filepath.Join(outDir, file.ReplaceExt(filepath.Base(mediaPath), ".wav"))
	args := pcmArgs(mediaPath, nil, nil, output)
	if err := f.runFFmpeg(ctx, args, output); err != nil {
		return "", fmt.Errorf("extract audio from %s: %w", filepath.Base(mediaPath), err)
	}
	f.logExtracted(output)
	return output, nil
}

func (f *FFmpeg) ExtractRange(ctx context.Context, mediaPath string, start, end time.Duration, outDir string) (string, error) {
	output := filepath.Join(outDir, file.ReplaceExt(filepath.Base(mediaPath), ".wav"))
	args := pcmArgs(mediaPath, &start, &end, output)
	if err := f.runFFmpeg(ctx, args, output); err != nil {
		return "", fmt.Errorf("extract audio range %s-%s from %s: %w",
			start, end, filepath.Base(mediaPath), err)
	}
	f.logExtracted(output)
	return output, nil
}

func (f *FFmpeg) ExtractSegment(ctx context.Context, audioPath string, start, end time.Duration, outPath string) error {
	args := pcmArgs(audioPath, &start, &end, outPath)
	if err := f.runFFmpeg(ctx, args, outPath); err != nil {
		return fmt.Errorf("extract segment %s-%s: %w", start, end, err)
	}
	return nil
}

func (f *FFmpeg) ProbeDuration(ctx context.Context, audioPath string) (time.Duration, error) {
	cmdPath, err := exec.LookPath(f.ffprobeCmd)
	if err != nil {
		return 0, fmt.Errorf("ffprobe not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, cmdPath, probeArgs(audioPath)...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run ffprobe: %w", err)
	}

	return ParseProbeDuration(output)
}

// ParseProbeDuration extracts a duration from ffprobe JSON, preferring the
// container-level duration and falling back to per-stream durations.
func ParseProbeDuration(probeJSON []byte) (time.Duration, error) {
	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			Duration string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(probeJSON, &probeResult); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	candidates := []string{probeResult.Format.Duration}
	for _, stream := range probeResult.Streams {
		candidates = append(candidates, stream.Duration)
	}

	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds <= 0 {
			continue
		}
		return time.Duration(seconds * float64(time.Second)), nil
	}

	return 0, fmt.Errorf("no duration in ffprobe output")
}

func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string, output string) error {
	cmdPath, err := exec.LookPath(f.ffmpegCmd)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg exited: %w", err)
	}

	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("ffmpeg produced no output file: %w", err)
	}
	return nil
}

func (f *FFmpeg) logExtracted(output string) {
	if f.logger == nil {
		return
	}
	if info, err := os.Stat(output); err == nil {
		f.logger.Debug("Extracted audio %s (%s)", filepath.Base(output), humanize.Bytes(uint64(info.Size())))
	}
}

// pcmArgs builds ffmpeg arguments for mono 16kHz s16le WAV output, with an
// optional time window. -ss/-to before -i makes ffmpeg seek on the input.
func pcmArgs(input string, start, end *time.Duration, output string) []string {
	args := []string{"-v", "error"}
	if start != nil {
		args = append(args, "-ss", formatSeconds(*start))
	}
	if end != nil {
		args = append(args, "-to", formatSeconds(*end))
	}
	args = append(args,
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-y",
		output,
	)
	return args
}

// probeArgs builds ffprobe arguments for the JSON output that
// ParseProbeDuration reads.
func probeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
