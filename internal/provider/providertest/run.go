package providertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// TestRunPutGet verifies put, overwrite, get, and not-found behavior.
func TestRunPutGet(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	run := types.RunRecord{
		RunID:              "ct-run-pg",
		Status:             types.RunRunning,
		EvaluatedAt:        started,
		ChurnThresholdDays: 90,
		StartedAt:          started,
	}
	require.NoError(t, prov.PutRun(ctx, run))

	finished := started.Add(2 * time.Second)
	run.Status = types.RunPartial
	run.FinishedAt = &finished
	run.Error = "1 component failed"
	run.Components = []types.ComponentResult{
		{Name: "facts", Status: types.ComponentSucceeded, Rows: map[string]int{"orders_mart": 3}},
		{Name: "affinity", Status: types.ComponentFailed, Error: "boom"},
	}
	require.NoError(t, prov.PutRun(ctx, run))

	got, err := prov.GetRun(ctx, "ct-run-pg")
	require.NoError(t, err)
	assert.Equal(t, "ct-run-pg", got.RunID)
	assert.Equal(t, types.RunPartial, got.Status)
	assert.Equal(t, 90, got.ChurnThresholdDays)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	require.Len(t, got.Components, 2)
	assert.Equal(t, 3, got.Component("facts").Rows["orders_mart"])
	assert.Equal(t, "boom", got.Component("affinity").Error)

	_, err = prov.GetRun(ctx, "ct-nonexistent-run")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

// TestRunList verifies listing runs with limit and newest-first ordering.
func TestRunList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	// Far enough ahead to be the newest runs in a shared store.
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		run := types.RunRecord{
			RunID:       fmt.Sprintf("ct-list-%d", i),
			Status:      types.RunCompleted,
			EvaluatedAt: base,
			StartedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, prov.PutRun(ctx, run))
	}

	runs, err := prov.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "ct-list-4", runs[0].RunID)
	assert.Equal(t, "ct-list-3", runs[1].RunID)
	assert.Equal(t, "ct-list-2", runs[2].RunID)
}
