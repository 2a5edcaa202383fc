package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"subforge/internal/batch"
)

func newBatchCommand(logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage the subtitle job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBatchAddCommand(logLevel))
	cmd.AddCommand(newBatchRunCommand(logLevel))
	cmd.AddCommand(newBatchListCommand(logLevel))
	cmd.AddCommand(newBatchRemoveCommand(logLevel))
	cmd.AddCommand(newBatchClearCommand(logLevel))
	cmd.AddCommand(newBatchCancelCommand(logLevel))

	return cmd
}

// withCoordinator opens the job store, builds a coordinator around it and
// closes the store afterwards.
func withCoordinator(logLevel string, fn func(*app, *batch.Coordinator) error) error {
	a, err := newApp(logLevel)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(a, batch.NewCoordinator(a.executor(), store, a.logger))
}

func newBatchAddCommand(logLevel *string) *cobra.Command {
	var (
		fromFlag    string
		toFlag      string
		backendFlag string
	)

	cmd := &cobra.Command{
		Use:   "add <media file>...",
		Short: "Queue subtitle jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clipStart, clipEnd, err := parseClipRange(fromFlag, toFlag)
			if err != nil {
				return err
			}

			return withCoordinator(*logLevel, func(a *app, coordinator *batch.Coordinator) error {
				backendKind := backendFlag
				if backendKind == "" {
					backendKind = a.cfg.Transcribe.Backend
				}
				for _, source := range args {
					job, created := coordinator.Enqueue(batch.EnqueueRequest{
						SourcePath: source,
						ClipStart:  clipStart,
						ClipEnd:    clipEnd,
						Backend:    backendKind,
					})
					if created {
						fmt.Fprintf(cmd.OutOrStdout(), "queued %s  %s\n", job.ID, source)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "already queued as %s  %s\n", job.ID, source)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "Clip start, e.g. 1m30s")
	cmd.Flags().StringVar(&toFlag, "to", "", "Clip end, e.g. 2m45s")
	cmd.Flags().StringVar(&backendFlag, "backend", "", "Transcription backend for these jobs")

	return cmd
}

func newBatchRunCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process all pending jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(*logLevel, func(a *app, coordinator *batch.Coordinator) error {
				if err := coordinator.Start(); err != nil {
					return err
				}

				stop := make(chan struct{})
				go func() {
					select {
					case <-cmd.Context().Done():
						coordinator.Cancel()
					case <-stop:
					}
				}()

				coordinator.Wait()
				close(stop)

				counters := coordinator.Counters()
				fmt.Fprintf(cmd.OutOrStdout(), "completed %d, failed %d, cancelled %d, pending %d\n",
					counters.Completed, counters.Failed, counters.Cancelled, counters.Pending)
				if counters.Failed > 0 {
					return fmt.Errorf("%d job(s) failed", counters.Failed)
				}
				return nil
			})
		},
	}
}

func newBatchListCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(*logLevel, func(_ *app, coordinator *batch.Coordinator) error {
				jobs := coordinator.List()
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					detail := job.OutputPath
					if job.Error != "" {
						detail = job.Error
					}
					rows = append(rows, []string{
						shortID(job.ID),
						job.SourcePath,
						job.Backend,
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.Progress),
						detail,
						humanize.Time(job.UpdatedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "SOURCE", "BACKEND", "STATUS", "PROGRESS", "DETAIL", "UPDATED"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newBatchRemoveCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job id>...",
		Short: "Remove jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(*logLevel, func(_ *app, coordinator *batch.Coordinator) error {
				for _, id := range args {
					if err := coordinator.RemoveJob(resolveID(coordinator, id)); err != nil {
						return fmt.Errorf("remove %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				}
				return nil
			})
		},
	}
}

func newBatchClearCommand(logLevel *string) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all jobs, or all jobs in one status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(*logLevel, func(_ *app, coordinator *batch.Coordinator) error {
				var removed int
				if statusFlag == "" {
					removed = coordinator.Clear()
				} else {
					removed = coordinator.RemoveByStatus(batch.Status(statusFlag))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only remove jobs in this status (pending, completed, failed, cancelled)")
	return cmd
}

func newBatchCancelCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the batch running in the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}

			addr := a.cfg.Daemon.ListenAddr
			if strings.HasPrefix(addr, ":") {
				addr = "127.0.0.1" + addr
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				"http://"+addr+"/api/batch/cancel", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("reach daemon at %s: %w", addr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return fmt.Errorf("daemon returned %s", resp.Status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancellation requested")
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID accepts a full job ID or the 8-char prefix the list shows.
func resolveID(coordinator *batch.Coordinator, id string) string {
	if _, ok := coordinator.Get(id); ok {
		return id
	}
	for _, job := range coordinator.List() {
		if shortID(job.ID) == id {
			return job.ID
		}
	}
	return id
}
