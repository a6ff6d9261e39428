// Package main is the scry-notes server: an HTTP service that runs content
// processing tasks (transcription, correction, summarization, knowledge
// records and tagging) on a bounded worker pool and streams their progress.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "scry-notes",
		Short:        "Scry notes processing server",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
