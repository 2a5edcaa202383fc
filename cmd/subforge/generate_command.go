package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"subforge/internal/pipeline"
)

func newGenerateCommand(logLevel *string) *cobra.Command {
	var (
		fromFlag     string
		toFlag       string
		backendFlag  string
		languageFlag string
		outputFlag   string
		chunkFlag    int
		overlapFlag  int
		wordTSFlag   bool
		vadFlag      bool
		vadThreshold float64
		promptFlag   string
	)

	cmd := &cobra.Command{
		Use:   "generate <media file>",
		Short: "Generate subtitles for one media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath := args[0]
			if _, err := os.Stat(sourcePath); err != nil {
				return fmt.Errorf("media file: %w", err)
			}

			clipStart, clipEnd, err := parseClipRange(fromFlag, toFlag)
			if err != nil {
				return err
			}

			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			transcriber, err := a.transcriber(ctx, backendFlag)
			if err != nil {
				return err
			}

			opts := a.backendOptions()
			if languageFlag != "" {
				opts.Language = languageFlag
			}
			opts.WordTimestamps = wordTSFlag
			opts.VAD = vadFlag
			opts.VADThreshold = vadThreshold
			opts.Prompt = promptFlag

			p := a.newPipelineWithOverrides(
				transcriber,
				time.Duration(chunkFlag)*time.Second,
				time.Duration(overlapFlag)*time.Second,
			)
			content, err := p.Generate(ctx, pipeline.Request{
				SourcePath: sourcePath,
				ClipStart:  clipStart,
				ClipEnd:    clipEnd,
				Options:    opts,
				Progress: func(percent float64, message string) {
					a.logger.Info("[%5.1f%%] %s", percent, message)
				},
			})
			if err != nil {
				return err
			}

			outputPath := outputFlag
			if outputPath == "" {
				outputPath = subtitleOutputPath(sourcePath, clipStart, clipEnd)
			}
			if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
				return fmt.Errorf("write subtitle file: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "Clip start, e.g. 1m30s")
	cmd.Flags().StringVar(&toFlag, "to", "", "Clip end, e.g. 2m45s")
	cmd.Flags().StringVar(&backendFlag, "backend", "", "Override the configured transcription backend")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Language hint passed to the backend")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output subtitle path")
	cmd.Flags().IntVar(&chunkFlag, "chunk-length", 0, "Chunk length in seconds")
	cmd.Flags().IntVar(&overlapFlag, "overlap", 0, "Chunk overlap in seconds")
	cmd.Flags().BoolVar(&wordTSFlag, "word-timestamps", false, "Request word-level timestamps where the backend supports them")
	cmd.Flags().BoolVar(&vadFlag, "vad", false, "Enable voice activity detection pre-filtering")
	cmd.Flags().Float64Var(&vadThreshold, "vad-threshold", 0, "Voice activity detection threshold, 0 keeps the backend default")
	cmd.Flags().StringVar(&promptFlag, "prompt", "", "Free-text prompt passed to backends that accept one")

	return cmd
}

func parseClipRange(from, to string) (time.Duration, time.Duration, error) {
	if from == "" && to == "" {
		return 0, 0, nil
	}
	if to == "" {
		return 0, 0, fmt.Errorf("--from requires --to")
	}

	var clipStart time.Duration
	var err error
	if from != "" {
		clipStart, err = time.ParseDuration(from)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --from: %w", err)
		}
	}
	clipEnd, err := time.ParseDuration(to)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --to: %w", err)
	}
	if clipEnd <= clipStart {
		return 0, 0, fmt.Errorf("--to must come after --from")
	}
	return clipStart, clipEnd, nil
}
