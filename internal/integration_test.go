package internal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/ledgerlens/internal/alert"
	"github.com/dwsmith1983/ledgerlens/internal/config"
	"github.com/dwsmith1983/ledgerlens/internal/engine"
	"github.com/dwsmith1983/ledgerlens/internal/export"
	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/internal/testutil"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func readAlertLog(t *testing.T, path string) []types.Alert {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var alerts []types.Alert
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var a types.Alert
		if err := json.Unmarshal(line, &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

func writeProject(t *testing.T, dir, alertLog string) *types.ProjectConfig {
	t.Helper()
	content := `provider: redis
redis:
  addr: localhost:6379
engine:
  churnThresholdDays: 90
  evaluatedAt: "2024-06-01T00:00:00Z"
  workers: 3
alerts:
  - type: file
    path: ` + alertLog + `
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	return cfg
}

func runParams(t *testing.T, cfg *types.ProjectConfig) engine.Params {
	t.Helper()
	at, err := config.EvaluatedAt(cfg)
	require.NoError(t, err)
	return engine.Params{
		EvaluatedAt:        at,
		ChurnThresholdDays: cfg.Engine.ChurnThresholdDays,
		MinAffinitySupport: cfg.Engine.MinAffinitySupport,
	}
}

// flakyStore fails publishes that include one table until healed.
type flakyStore struct {
	*testutil.MockProvider
	table string
}

func (f *flakyStore) Publish(ctx context.Context, runID string, tables []mart.Table) error {
	for _, t := range tables {
		if t.Name == f.table {
			return errors.New("connection reset by peer")
		}
	}
	return f.MockProvider.Publish(ctx, runID, tables)
}

// ---------------------------------------------------------------------------
// Test 1: Happy path. Configure, run, export every derived table
// ---------------------------------------------------------------------------

func TestIntegration_RunAndExport(t *testing.T) {
	tmpDir := t.TempDir()
	alertLog := filepath.Join(tmpDir, "alerts.jsonl")
	cfg := writeProject(t, tmpDir, alertLog)

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, nil)
	require.NoError(t, err)

	prov := testutil.NewMockProvider()
	prov.SetSources(testutil.ScenarioRaw())
	eng := engine.New(prov, nil,
		engine.WithAlertFunc(dispatcher.AlertFunc()),
		engine.WithWorkers(cfg.Engine.Workers),
	)

	ctx := context.Background()
	run, err := eng.Run(ctx, runParams(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), run.EvaluatedAt)
	assert.Empty(t, readAlertLog(t, alertLog), "a clean run raises no alerts")

	outDir := filepath.Join(tmpDir, "exports")
	results, err := export.New(prov, export.NewDirTarget(outDir), nil).Export(ctx, run.RunID, nil)
	require.NoError(t, err)
	require.Len(t, results, len(mart.Names(mart.KindDerived)))

	for _, r := range results {
		assert.False(t, r.Skipped, r.Table)
		data, err := os.ReadFile(filepath.Join(outDir, run.RunID, r.Table+".json"))
		require.NoError(t, err, r.Table)

		var doc export.Document
		require.NoError(t, json.Unmarshal(data, &doc), r.Table)
		assert.Equal(t, run.RunID, doc.RunID)
		assert.Len(t, doc.Rows, r.Rows, r.Table)

		published, ok := prov.Table(r.Table)
		require.True(t, ok)
		assert.Equal(t, published.Len(), r.Rows, r.Table)
	}

	rfm, err := prov.ReadTable(ctx, mart.CustomerRFMMart)
	require.NoError(t, err)
	segments := map[string]any{}
	for _, row := range rfm {
		segments[row["customer_unique_id"].(string)] = row["customer_segment"]
	}
	assert.Equal(t, string(types.SegmentNeverActive), segments["Y"])
}

// ---------------------------------------------------------------------------
// Test 2: A failing component degrades the run and alerts; a rerun recovers
// ---------------------------------------------------------------------------

func TestIntegration_PartialRunThenRecovery(t *testing.T) {
	tmpDir := t.TempDir()
	alertLog := filepath.Join(tmpDir, "alerts.jsonl")
	cfg := writeProject(t, tmpDir, alertLog)

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, nil)
	require.NoError(t, err)

	mock := testutil.NewMockProvider()
	mock.SetSources(testutil.ScenarioRaw())
	store := &flakyStore{MockProvider: mock, table: mart.CohortMatrixMart}

	ctx := context.Background()
	first, err := engine.New(store, nil, engine.WithAlertFunc(dispatcher.AlertFunc())).Run(ctx, runParams(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, types.RunPartial, first.Status)
	assert.Equal(t, types.ComponentFailed, first.Component(engine.NodeCohorts).Status)

	alerts := readAlertLog(t, alertLog)
	require.Len(t, alerts, 2)
	assert.Equal(t, engine.NodeCohorts, alerts[0].Component)
	assert.Equal(t, types.AlertLevelError, alerts[0].Level)
	assert.Equal(t, first.RunID, alerts[1].RunID)
	assert.Equal(t, types.AlertLevelWarning, alerts[1].Level)

	_, err = mock.ReadTable(ctx, mart.CohortMatrixMart)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	// Export skips the table that never made it.
	results, err := export.New(mock, export.NewDirTarget(filepath.Join(tmpDir, "out")), nil).
		Export(ctx, first.RunID, []string{mart.CohortMatrixMart, mart.RetentionMart})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Skipped)
	assert.False(t, results[1].Skipped)

	store.table = ""
	second, err := engine.New(store, nil).Run(ctx, runParams(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, second.Status)
	assert.NotEqual(t, first.RunID, second.RunID)

	runs, err := mock.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = mock.ReadTable(ctx, mart.CohortMatrixMart)
	assert.NoError(t, err)
}
