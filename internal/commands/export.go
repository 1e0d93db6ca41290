package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/internal/export"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

type exportFlags struct {
	runID    string
	dir      string
	s3Bucket string
	s3Prefix string
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export [table...]",
		Short: "Write published tables as JSON to a directory or S3",
		Long: `Exports the named tables, or every derived table, as one JSON document
each under {run-id}/{table}.json. The run id defaults to the latest run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, f, args)
		},
	}
	cmd.Flags().StringVar(&f.runID, "run-id", "", "Run id to label the export with, default latest run")
	cmd.Flags().StringVar(&f.dir, "out", "", "Output directory (overrides export.dir)")
	cmd.Flags().StringVar(&f.s3Bucket, "s3-bucket", "", "S3 bucket (overrides export.s3Bucket)")
	cmd.Flags().StringVar(&f.s3Prefix, "s3-prefix", "", "S3 key prefix (overrides export.s3Prefix)")
	return cmd
}

func runExport(cmd *cobra.Command, f exportFlags, tables []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	mergeExportFlags(&cfg.Export, f)
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	ctx := cmd.Context()

	target, err := newTarget(ctx, cfg.Export)
	if err != nil {
		return err
	}

	prov, closeProv, err := openProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeProv()

	runID, err := resolveRunID(ctx, prov, f.runID)
	if err != nil {
		return err
	}

	results, err := export.New(prov, target, logger).Export(ctx, runID, tables)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	printExport(cmd.OutOrStdout(), target.Name(), runID, results)
	return nil
}

func mergeExportFlags(cfg *types.ExportConfig, f exportFlags) {
	if f.dir != "" {
		cfg.Dir = f.dir
		cfg.S3Bucket = ""
	}
	if f.s3Bucket != "" {
		cfg.S3Bucket = f.s3Bucket
	}
	if f.s3Prefix != "" {
		cfg.S3Prefix = f.s3Prefix
	}
}

// newTarget prefers S3 when a bucket is configured.
func newTarget(ctx context.Context, cfg types.ExportConfig) (export.Target, error) {
	switch {
	case cfg.S3Bucket != "":
		t, err := export.NewS3Target(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			return nil, err
		}
		return t, nil
	case cfg.Dir != "":
		return export.NewDirTarget(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("no export target: set export.dir or export.s3Bucket, or pass --out / --s3-bucket")
	}
}

func resolveRunID(ctx context.Context, prov provider.Provider, runID string) (string, error) {
	if runID != "" {
		if _, err := prov.GetRun(ctx, runID); err != nil {
			return "", fmt.Errorf("run %s: %w", runID, err)
		}
		return runID, nil
	}
	runs, err := prov.ListRuns(ctx, 1)
	if err != nil {
		return "", fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs recorded: %w", provider.ErrNotFound)
	}
	return runs[0].RunID, nil
}

func printExport(w io.Writer, target, runID string, results []export.Result) {
	_, _ = color.New(color.Bold).Fprintf(w, "Exported run %s to %s\n", runID, target)
	for _, r := range results {
		if r.Skipped {
			_, _ = fmt.Fprintln(w, color.YellowString("  ○ %-28s not published", r.Table))
			continue
		}
		_, _ = fmt.Fprintln(w, color.GreenString("  ✓ %-28s %d rows", r.Table, r.Rows))
	}
}
