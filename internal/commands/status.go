package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show recent runs, or one run's components",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			prov, closeProv, err := openProvider(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeProv()

			if len(args) > 0 {
				return showRun(ctx, cmd.OutOrStdout(), prov, args[0])
			}
			return showRuns(ctx, cmd.OutOrStdout(), prov, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to list")
	return cmd
}

func showRuns(ctx context.Context, w io.Writer, prov provider.Provider, limit int) error {
	runs, err := prov.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Recent Runs:")
	_, _ = fmt.Fprintln(w)
	for _, r := range runs {
		failed := 0
		for _, c := range r.Components {
			if c.Status != types.ComponentSucceeded {
				failed++
			}
		}
		_, _ = fmt.Fprintf(w, "  %-26s  %-20s  started=%s  evaluated=%s  not-succeeded=%d\n",
			r.RunID, runStatusString(r.Status), r.StartedAt.Format(time.RFC3339),
			r.EvaluatedAt.Format(time.RFC3339), failed)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func showRun(ctx context.Context, w io.Writer, prov provider.Provider, runID string) error {
	run, err := prov.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Run: %s\n", run.RunID)
	_, _ = fmt.Fprintf(w, "  Status:       %s\n", runStatusString(run.Status))
	_, _ = fmt.Fprintf(w, "  Evaluated at: %s\n", run.EvaluatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "  Churn days:   %d\n", run.ChurnThresholdDays)
	_, _ = fmt.Fprintf(w, "  Started:      %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		_, _ = fmt.Fprintf(w, "  Finished:     %s\n", run.FinishedAt.Format(time.RFC3339))
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "  Error:        %s\n", color.RedString(run.Error))
	}
	printComponents(w, run.Components)
	_, _ = fmt.Fprintln(w)
	return nil
}
