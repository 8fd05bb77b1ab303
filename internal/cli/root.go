// Package cli implements the confsync command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "confsync",
		Short:         "Sync a conference agenda into a local calendar store",
		Long:          "confsync detects the current IETF meeting, classifies its agenda into calendar blocks and sessions, and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOrDefault("CONFSYNC_CONFIG", "confsync.yaml"), "path to the YAML config file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newSyncCmd(&configPath),
		newMeetingCmd(&configPath),
		newAgendaCmd(&configPath),
		newStarCmd(&configPath),
	)
	return rootCmd
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
