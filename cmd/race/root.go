package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "Race timed purchase requests for auction lots",
		Long: `race runs a batch of timed lot purchases from the command line, without
the API or the queue. Settings come from the same environment variables and
.env file as the api and worker.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newProbeCommand())

	return cmd
}
