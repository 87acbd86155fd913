package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"incident-analyzer/internal/formatter"
)

func NewAnalyzeCmd() *cobra.Command {
	var (
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze FILE [FILE...]",
		Short: "Triage log files and print an incident report",
		Example: `  incidentctl analyze app.log worker.log
  incidentctl analyze -o json app.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := analyze(ctx, args)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.app.Analysis.Result(ctx, s.job.ID)
			if err != nil {
				return err
			}
			return formatter.DisplaySummary(cmd.OutOrStdout(), report, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "human", "Output format (human, json, yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall analysis timeout")
	return cmd
}
