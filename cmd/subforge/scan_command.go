package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subforge/internal/batch"
)

func newScanCommand(logLevel *string) *cobra.Command {
	var enqueueFlag bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find media files without generated subtitles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}
			if len(a.cfg.Library.MediaDirs) == 0 {
				return fmt.Errorf("MEDIA_DIRS is not configured")
			}

			candidates, err := a.scanner().Scan(cmd.Context())
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all media files already have subtitles")
				return nil
			}

			rows := make([][]string, 0, len(candidates))
			for _, candidate := range candidates {
				rows = append(rows, []string{
					candidate.MediaPath,
					humanize.Bytes(uint64(candidate.Size)),
					humanize.Time(candidate.ModTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"MEDIA", "SIZE", "MODIFIED"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))

			if !enqueueFlag {
				return nil
			}
			return withCoordinator(*logLevel, func(a *app, coordinator *batch.Coordinator) error {
				queued := 0
				for _, candidate := range candidates {
					if _, created := coordinator.Enqueue(batch.EnqueueRequest{
						SourcePath: candidate.MediaPath,
						Backend:    a.cfg.Transcribe.Backend,
					}); created {
						queued++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %d job(s)\n", queued)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&enqueueFlag, "enqueue", false, "Queue a batch job for every match")
	return cmd
}
