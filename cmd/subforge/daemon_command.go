package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/singleflight"

	"subforge/internal/batch"
	"subforge/internal/httpapi"
	"subforge/pkg/icron"
)

func newDaemonCommand(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the HTTP API and the scheduled library scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			coordinator := batch.NewCoordinator(a.executor(), store, a.logger)
			scanner := a.scanner()

			var group singleflight.Group
			runBatch := func() {
				_, _, _ = group.Do("scan-and-run", func() (any, error) {
					if removed := a.cache.SweepExpired(); removed > 0 {
						a.logger.Info("Swept %d expired cache entries", removed)
					}

					candidates, err := scanner.Scan(ctx)
					if err != nil {
						a.logger.Error("Library scan failed: %v", err)
						return nil, nil
					}
					for _, candidate := range candidates {
						coordinator.Enqueue(batch.EnqueueRequest{
							SourcePath: candidate.MediaPath,
							Backend:    a.cfg.Transcribe.Backend,
						})
					}

					err = coordinator.Start()
					switch {
					case errors.Is(err, batch.ErrEmptyQueue):
						a.logger.Debug("Nothing to do")
						return nil, nil
					case errors.Is(err, batch.ErrAlreadyRunning):
						return nil, nil
					case err != nil:
						a.logger.Error("Failed to start batch: %v", err)
						return nil, nil
					}
					coordinator.Wait()
					return nil, nil
				})
			}

			expr := a.cfg.Daemon.CronExpr
			if err := icron.Validate(expr); err != nil {
				return err
			}
			scheduler := cron.New(cron.WithParser(icron.Parser()))
			if _, err := scheduler.AddFunc(expr, runBatch); err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			if info, err := icron.GetTriggerInfo(expr, time.Now()); err == nil {
				a.logger.Info("Next scheduled scan at %s (in %s)", info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
			}

			server := httpapi.NewServer(scanner, coordinator,
				httpapi.WithDefaultBackend(a.cfg.Transcribe.Backend))

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info("Listening on %s", a.cfg.Daemon.ListenAddr)
				serveErr <- server.ListenAndServe(a.cfg.Daemon.ListenAddr)
			}()

			select {
			case err := <-serveErr:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down")
			coordinator.Cancel()
			coordinator.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
