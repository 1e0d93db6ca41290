// Package commands implements the CLI subcommands for the ledgerlens binary.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/internal/config"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/internal/provider/postgres"
	"github.com/dwsmith1983/ledgerlens/internal/provider/redis"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// DirFlag is the persistent flag naming the project directory.
const DirFlag = "dir"

// projectDir returns the --dir flag value, defaulting to the working directory.
func projectDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString(DirFlag)
	if err != nil || dir == "" {
		return "."
	}
	return dir
}

func loadConfig(cmd *cobra.Command) (*types.ProjectConfig, error) {
	cfg, err := config.Load(projectDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg types.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newProvider creates the configured storage provider behind a circuit breaker.
func newProvider(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (provider.Provider, error) {
	var inner provider.Provider
	switch cfg.Provider {
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config is required when provider is postgres")
		}
		store, err := postgres.New(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		inner = store
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		inner = redis.New(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return provider.WithBreaker(inner, provider.DefaultBreakerConfig(), logger), nil
}

// openProvider creates and starts the provider; the returned func stops it.
func openProvider(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger) (provider.Provider, func(), error) {
	prov, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating provider: %w", err)
	}
	if err := prov.Start(ctx); err != nil {
		_ = prov.Stop(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("connecting to provider: %w", err)
	}
	return prov, func() { _ = prov.Stop(context.WithoutCancel(ctx)) }, nil
}

func runStatusString(s types.RunStatus) string {
	switch s {
	case types.RunCompleted:
		return color.GreenString(string(s))
	case types.RunPartial:
		return color.YellowString(string(s))
	case types.RunFailed:
		return color.RedString(string(s))
	case types.RunRunning:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

func componentMark(s types.ComponentStatus) string {
	switch s {
	case types.ComponentSucceeded:
		return color.GreenString("✓")
	case types.ComponentFailed:
		return color.RedString("✗")
	case types.ComponentSkipped:
		return color.YellowString("○")
	default:
		return "·"
	}
}
