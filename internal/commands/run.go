package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/dwsmith1983/ledgerlens/internal/alert"
	"github.com/dwsmith1983/ledgerlens/internal/config"
	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/internal/engine"
	"github.com/dwsmith1983/ledgerlens/internal/metrics"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// ErrRunFailed is returned when the run finished with status FAILED, so the
// process exits non-zero.
var ErrRunFailed = errors.New("run failed")

type runFlags struct {
	evaluatedAt    string
	churnThreshold int
	workers        int
	noProgress     bool
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recompute and publish every derived table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngine(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.evaluatedAt, "evaluated-at", "", "Evaluation instant (RFC 3339), default now")
	cmd.Flags().IntVar(&f.churnThreshold, "churn-threshold", 0, "Days without an order before a customer counts as churned")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Components run in parallel, default engine.workers")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *types.ProjectConfig, f runFlags) error {
	if cmd.Flags().Changed("evaluated-at") {
		cfg.Engine.EvaluatedAt = f.evaluatedAt
	}
	if cmd.Flags().Changed("churn-threshold") {
		cfg.Engine.ChurnThresholdDays = f.churnThreshold
	}
	if cmd.Flags().Changed("workers") {
		cfg.Engine.Workers = f.workers
	}
	config.ApplyDefaults(cfg)
	return config.Validate(cfg)
}

func runEngine(cmd *cobra.Command, f runFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg, f); err != nil {
		return err
	}
	evaluatedAt, err := config.EvaluatedAt(cfg)
	if err != nil {
		return err
	}
	lockTTL, err := config.LockTTL(cfg)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := metrics.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	recorder, err := metrics.NewRecorder(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return err
	}

	prov, closeProv, err := openProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeProv()

	opts := []engine.Option{
		engine.WithAlertFunc(dispatcher.AlertFunc()),
		engine.WithRecorder(recorder),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithLockTTL(lockTTL),
	}
	if !f.noProgress {
		g, err := engine.NewGraph(engine.Params{}, nil)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithObserver(newProgressObserver(len(g.Nodes()))))
	}

	run, err := engine.New(prov, logger, opts...).Run(ctx, engine.Params{
		EvaluatedAt:        evaluatedAt,
		ChurnThresholdDays: cfg.Engine.ChurnThresholdDays,
		MinAffinitySupport: cfg.Engine.MinAffinitySupport,
	})
	if run != nil {
		printRun(cmd.OutOrStdout(), run)
	}
	if err != nil {
		return err
	}
	if run.Status == types.RunFailed {
		return fmt.Errorf("%s: %w", run.RunID, ErrRunFailed)
	}
	return nil
}

// progressObserver advances a progress bar as components finish.
type progressObserver struct {
	bar *progressbar.ProgressBar
}

func newProgressObserver(total int) *progressObserver {
	return &progressObserver{bar: progressbar.Default(int64(total), "components")}
}

func (p *progressObserver) NodeStarted(name string) {
	p.bar.Describe(name)
}

func (p *progressObserver) NodeFinished(dag.Result) {
	_ = p.bar.Add(1)
}

func printRun(w io.Writer, run *types.RunRecord) {
	bold := color.New(color.Bold)
	_, _ = fmt.Fprintln(w)
	_, _ = bold.Fprintf(w, "Run %s  %s\n", run.RunID, runStatusString(run.Status))
	_, _ = fmt.Fprintf(w, "  Evaluated at: %s\n", run.EvaluatedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		_, _ = fmt.Fprintf(w, "  Duration:     %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "  Error:        %s\n", color.RedString(run.Error))
	}
	printComponents(w, run.Components)
}

func printComponents(w io.Writer, components []types.ComponentResult) {
	if len(components) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	for _, c := range components {
		rows := 0
		for _, n := range c.Rows {
			rows += n
		}
		line := fmt.Sprintf("  %s %-10s %-10s", componentMark(c.Status), c.Name, c.Status)
		switch {
		case c.Error != "":
			line += "  " + c.Error
		case c.Status == types.ComponentSucceeded:
			line += fmt.Sprintf("  %d rows  %s", rows, c.Duration.Round(time.Millisecond))
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
