package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"subforge/internal/backend"
	"subforge/internal/batch"
	"subforge/internal/cache"
	"subforge/internal/config"
	"subforge/internal/library"
	"subforge/internal/llm"
	"subforge/internal/media"
	"subforge/internal/persistence"
	"subforge/internal/pipeline"
	"subforge/internal/postprocess"
	"subforge/pkg/file"
	"subforge/pkg/log"
)

// app wires configuration into the components the commands share.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	extractor *media.FFmpeg
	cache     *cache.Cache
	optimizer *postprocess.Optimizer
}

func newApp(logLevel string) (*app, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := log.NewLogger(log.ParseLevel(logLevel))

	resultCache, err := cache.New(cfg.Pipeline.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open result cache: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		extractor: media.NewFFmpeg(logger),
		cache:     resultCache,
	}

	if cfg.OptimizeEnabled() {
		client, err := llm.NewClient(&cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create correction client: %w", err)
		}
		a.optimizer = postprocess.NewOptimizer(client, logger)
	}

	return a, nil
}

// transcriber builds the backend variant, overriding the configured kind
// when a job or flag names one explicitly.
func (a *app) transcriber(ctx context.Context, kind string) (backend.Transcriber, error) {
	settings := a.cfg.BackendSettings()
	if kind != "" {
		settings.Kind = kind
	}
	return backend.New(ctx, settings, a.logger)
}

func (a *app) newPipeline(transcriber backend.Transcriber) *pipeline.Pipeline {
	return a.newPipelineWithOverrides(transcriber, 0, 0)
}

func (a *app) newPipelineWithOverrides(transcriber backend.Transcriber, chunkLength, overlap time.Duration) *pipeline.Pipeline {
	cfg := a.cfg.PipelineSettings()
	if chunkLength > 0 {
		cfg.ChunkLength = chunkLength
	}
	if overlap > 0 {
		cfg.Overlap = overlap
	}
	return pipeline.New(a.extractor, transcriber, a.optimizer, a.cache, cfg, a.logger)
}

func (a *app) scanner() *library.Scanner {
	return library.NewScanner(a.cfg.Library.MediaDirs, a.logger)
}

func (a *app) openStore() (*persistence.SQLiteStore, error) {
	return persistence.NewSQLiteStore(a.cfg.DBPath())
}

// executor adapts the pipeline into the coordinator's per-job contract and
// writes the generated subtitles next to the media file.
func (a *app) executor() batch.Executor {
	return func(ctx context.Context, job batch.SubtitleJob, progress func(float64, string)) (string, error) {
		transcriber, err := a.transcriber(ctx, job.Backend)
		if err != nil {
			return "", err
		}

		content, err := a.newPipeline(transcriber).Generate(ctx, pipeline.Request{
			SourcePath: job.SourcePath,
			ClipStart:  job.ClipStart,
			ClipEnd:    job.ClipEnd,
			Options:    a.backendOptions(),
			Progress:   progress,
		})
		if err != nil {
			return "", err
		}

		outputPath := subtitleOutputPath(job.SourcePath, job.ClipStart, job.ClipEnd)
		if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("write subtitle file: %w", err)
		}
		return outputPath, nil
	}
}

func (a *app) backendOptions() backend.Options {
	return backend.Options{Language: a.cfg.Transcribe.Language}
}

// subtitleOutputPath places subtitles next to the source; clip jobs get the
// clip range embedded in the name so they never clash with the whole file.
func subtitleOutputPath(sourcePath string, clipStart, clipEnd time.Duration) string {
	if clipEnd > clipStart && clipEnd > 0 {
		label := fmt.Sprintf("clip-%d-%d", clipStart.Milliseconds(), clipEnd.Milliseconds())
		return file.StemSuffixed(sourcePath, label, ".srt")
	}
	return file.ReplaceExt(sourcePath, ".srt")
}
