// Package pipeline composes audio extraction, chunk planning, concurrent
// transcription, merging, optional text correction and caching into one
// subtitle generation run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"subforge/internal/audio"
	"subforge/internal/backend"
	"subforge/internal/cache"
	"subforge/internal/media"
	"subforge/internal/postprocess"
	"subforge/internal/retry"
	"subforge/internal/subtitle"
	"subforge/pkg/log"
)

// Stage boundaries of the global progress range.
const (
	extractBase    = 0
	extractSpan    = 15
	planBase       = 15
	planSpan       = 10
	transcribeBase = 25
	transcribeSpan = 55
	mergeBase      = 80
	mergeSpan      = 5
	optimizeBase   = 85
	optimizeSpan   = 10
)

// Config tunes one pipeline instance.
type Config struct {
	ChunkLength   time.Duration
	Overlap       time.Duration
	MaxConcurrent int
	CacheTTL      time.Duration
	Retry         retry.Options
}

func (c Config) withDefaults() Config {
	if c.ChunkLength <= 0 {
		c.ChunkLength = 600 * time.Second
	}
	if c.Overlap <= 0 {
		c.Overlap = 10 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cache.DefaultTTL
	}
	return c
}

// Request describes one subtitle generation job.
type Request struct {
	SourcePath string
	// ClipStart/ClipEnd restrict transcription to a clip; ClipEnd zero
	// means the whole file.
	ClipStart time.Duration
	ClipEnd   time.Duration
	Options   backend.Options
	// CustomInstructions are passed to the optional text correction step.
	CustomInstructions string
	Progress           ProgressFunc
}

func (r Request) clipped() bool {
	return r.ClipEnd > r.ClipStart && r.ClipEnd > 0
}

// clipLabel distinguishes clip jobs in cache identity and output naming.
func (r Request) clipLabel() string {
	if !r.clipped() {
		return ""
	}
	return fmt.Sprintf("%d-%d", r.ClipStart.Milliseconds(), r.ClipEnd.Milliseconds())
}

// Pipeline is the single-job orchestrator. The optimizer and cache are
// optional; nil disables the respective stage.
type Pipeline struct {
	extractor   media.Extractor
	transcriber backend.Transcriber
	planner     *audio.Planner
	optimizer   *postprocess.Optimizer
	cache       *cache.Cache
	logger      *log.Logger
	cfg         Config
}

func New(
	extractor media.Extractor,
	transcriber backend.Transcriber,
	optimizer *postprocess.Optimizer,
	resultCache *cache.Cache,
	cfg Config,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		extractor:   extractor,
		transcriber: transcriber,
		planner:     audio.NewPlanner(extractor, logger),
		optimizer:   optimizer,
		cache:       resultCache,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

// Generate runs the full pipeline for req and returns the subtitle text.
// Temp audio and chunk files are removed on every exit path; cancellation
// is honored at stage boundaries and inside the backend calls.
func (p *Pipeline) Generate(ctx context.Context, req Request) (string, error) {
	progress := newReporter(req.Progress)
	identity := p.transcriber.Identity()

	cacheKey := p.cacheKey(req, identity)
	if cacheKey != "" {
		if content, ok := p.cache.Get(cacheKey); ok {
			p.logger.Info("Cache hit for %s on %s", req.SourcePath, identity)
			progress.emit(100, "subtitles served from cache")
			return content, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// extract
	stage := progress.stage(extractBase, extractSpan)
	stage(0, "extracting audio")

	workDir, err := os.MkdirTemp("", "subforge-audio-*")
	if err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath, err := p.extractAudio(ctx, req, workDir)
	if err != nil {
		return "", fmt.Errorf("audio extraction failed: %w", err)
	}
	stage(100, "audio extracted")

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// plan
	stage = progress.stage(planBase, planSpan)
	stage(0, "planning chunks")

	plan, err := p.planner.Plan(ctx, audioPath, p.cfg.ChunkLength, p.cfg.Overlap)
	if err != nil {
		return "", fmt.Errorf("chunk planning failed: %w", err)
	}
	defer plan.Cleanup()
	stage(100, fmt.Sprintf("planned %d chunk(s)", len(plan.Chunks)))

	// transcribe
	results, err := p.transcribeChunks(ctx, plan.Chunks, req.Options, progress)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// merge
	stage = progress.stage(mergeBase, mergeSpan)
	stage(0, "merging chunk results")
	cues := audio.MergeChunkCues(results, p.cfg.Overlap)
	stage(100, fmt.Sprintf("merged %d cues", len(cues)))

	if req.Options.Language == "" && len(cues) > 0 {
		p.logger.Info("Detected subtitle language: %s", subtitle.DetectLanguage(cues))
	}

	// optimize, best-effort
	if p.optimizer != nil && len(cues) > 0 {
		stage = progress.stage(optimizeBase, optimizeSpan)
		stage(0, "correcting subtitle text")
		cues = p.optimizer.Optimize(ctx, cues, req.CustomInstructions)
		stage(100, "correction finished")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	content := subtitle.Format(cues)

	if cacheKey != "" {
		p.cache.Put(cacheKey, content, p.cfg.CacheTTL)
	}

	progress.emit(100, "subtitles generated")
	return content, nil
}

func (p *Pipeline) cacheKey(req Request, identity backend.Identity) string {
	if p.cache == nil {
		return ""
	}

	backendID := identity.ID
	if label := req.clipLabel(); label != "" {
		backendID += "|clip:" + label
	}
	key, err := cache.Key(req.SourcePath, backendID, identity.Model)
	if err != nil {
		p.logger.Debug("Cache disabled for this run: %v", err)
		return ""
	}
	return key
}

func (p *Pipeline) extractAudio(ctx context.Context, req Request, workDir string) (string, error) {
	if req.clipped() {
		return p.extractor.ExtractRange(ctx, req.SourcePath, req.ClipStart, req.ClipEnd, workDir)
	}
	return p.extractor.ExtractWhole(ctx, req.SourcePath, workDir)
}

// transcribeChunks dispatches chunk transcription. A single chunk runs
// inline; multiple chunks fan out with bounded concurrency and fan in at
// the errgroup barrier. One failed chunk, after its own retries, fails
// the whole run.
func (p *Pipeline) transcribeChunks(ctx context.Context, chunks []audio.Chunk, opts backend.Options, progress *reporter) ([]audio.ChunkCues, error) {
	results := make([]audio.ChunkCues, len(chunks))

	if len(chunks) == 1 {
		stage := progress.stage(transcribeBase, transcribeSpan)
		cues, err := p.transcribeOne(ctx, chunks[0], opts, stage)
		if err != nil {
			return nil, err
		}
		results[0] = audio.ChunkCues{Chunk: chunks[0], Cues: cues}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	span := float64(transcribeSpan) / float64(len(chunks))
	for i, chunk := range chunks {
		i, chunk := i, chunk
		stage := progress.stage(transcribeBase+span*float64(i), span)
		g.Go(func() error {
			cues, err := p.transcribeOne(gctx, chunk, opts, stage)
			if err != nil {
				return err
			}
			results[i] = audio.ChunkCues{Chunk: chunk, Cues: cues}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) transcribeOne(ctx context.Context, chunk audio.Chunk, opts backend.Options, stage func(float64, string)) ([]subtitle.Cue, error) {
	retryOpts := p.cfg.Retry
	if retryOpts.OnRetry == nil {
		retryOpts.OnRetry = func(_ int, message string) {
			p.logger.Warn("Transcription of %s: %s", chunk, message)
		}
	}

	stage(0, fmt.Sprintf("transcribing %s", chunk))
	cues, err := retry.Do(ctx, func(ctx context.Context) ([]subtitle.Cue, error) {
		return p.transcriber.Transcribe(ctx, chunk.Path, opts, func(pct float64, msg string) {
			stage(pct, msg)
		})
	}, backend.IsRetryable, retryOpts)
	if err != nil {
		return nil, fmt.Errorf("transcription of chunk %d failed: %w", chunk.Index, err)
	}

	stage(100, fmt.Sprintf("%s transcribed", chunk))
	return cues, nil
}
