package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var logLevelFlag string

	rootCmd := &cobra.Command{
		Use:           "subforge",
		Short:         "Subtitle generation for recorded media",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newGenerateCommand(&logLevelFlag))
	rootCmd.AddCommand(newBatchCommand(&logLevelFlag))
	rootCmd.AddCommand(newScanCommand(&logLevelFlag))
	rootCmd.AddCommand(newCacheCommand(&logLevelFlag))
	rootCmd.AddCommand(newDaemonCommand(&logLevelFlag))

	return rootCmd
}
