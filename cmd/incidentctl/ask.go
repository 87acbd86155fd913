package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"incident-analyzer/internal/formatter"
)

func NewAskCmd() *cobra.Command {
	var (
		output    string
		questions []string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask -q QUESTION FILE [FILE...]",
		Short: "Analyze log files and answer follow-up questions with citations",
		Example: `  incidentctl ask -q "when did the disk fill up?" node.log
  incidentctl ask -q "which service failed first?" -q "was a deploy involved?" app.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(questions) == 0 {
				return fmt.Errorf("at least one -q/--question is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			s, err := analyze(ctx, args)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, q := range questions {
				resp, err := s.app.Analysis.Ask(ctx, s.job.ID, q)
				if err != nil {
					return fmt.Errorf("ask %q: %w", q, err)
				}
				if err := formatter.DisplayAnswer(cmd.OutOrStdout(), q, resp, output); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "human", "Output format (human, json, yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout")
	return cmd
}
