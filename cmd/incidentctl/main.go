package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "incidentctl",
		Short: "Analyze incident logs from the command line",
		Long: `incidentctl runs the incident analysis pipeline in-process.

It triages the given log files, retrieves similar postmortems from the
configured index, and prints a structured incident report. Follow-up
questions are answered from the same evidence with verbatim citations.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write pipeline logs to stderr")

	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewAskCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "incidentctl %s (%s)\n", version, commit)
		},
	}
}
