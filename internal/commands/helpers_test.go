package commands

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func TestNewProvider_Redis(t *testing.T) {
	cfg := &types.ProjectConfig{
		Provider: "redis",
		Redis:    &types.RedisConfig{Addr: "localhost:6379"},
	}
	p, err := newProvider(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "etcd"}
	_, err := newProvider(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewProvider_MissingSection(t *testing.T) {
	for _, name := range []string{"redis", "postgres"} {
		_, err := newProvider(context.Background(), &types.ProjectConfig{Provider: name}, nil)
		if err == nil || !strings.Contains(err.Error(), name+" config is required") {
			t.Errorf("%s: expected missing config error, got %v", name, err)
		}
	}
}

func TestNewProvider_BadPostgresDSN(t *testing.T) {
	cfg := &types.ProjectConfig{Provider: "postgres", Postgres: &types.PostgresConfig{DSN: "::not a dsn"}}
	if _, err := newProvider(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for malformed dsn")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(types.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "table", "orders_mart")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"table":"orders_mart"`) {
		t.Errorf("expected JSON attribute, got %s", out)
	}
}

func TestProjectDir(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	if got := projectDir(cmd); got != "." {
		t.Errorf("without flag: got %q", got)
	}
	cmd.Flags().String(DirFlag, "", "")
	if err := cmd.Flags().Set(DirFlag, "/srv/ledgerlens"); err != nil {
		t.Fatal(err)
	}
	if got := projectDir(cmd); got != "/srv/ledgerlens" {
		t.Errorf("with flag: got %q", got)
	}
}
