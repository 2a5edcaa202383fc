package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCommand(logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the transcription result cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}
			removed := a.cache.SweepExpired()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*logLevel)
			if err != nil {
				return err
			}
			if err := a.cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})

	return cmd
}
