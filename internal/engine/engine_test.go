package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/testutil"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var evaluatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type alertLog struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (l *alertLog) fn(_ context.Context, a types.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, a)
}

func (l *alertLog) forComponent(name string) []types.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.Alert
	for _, a := range l.alerts {
		if a.Component == name {
			out = append(out, a)
		}
	}
	return out
}

// tableFailer rejects publishes that include one table.
type tableFailer struct {
	*testutil.MockProvider
	table string
}

func (f *tableFailer) Publish(ctx context.Context, runID string, tables []mart.Table) error {
	for _, t := range tables {
		if t.Name == f.table {
			return errors.New("disk full")
		}
	}
	return f.MockProvider.Publish(ctx, runID, tables)
}

func newScenarioProvider() *testutil.MockProvider {
	prov := testutil.NewMockProvider()
	prov.SetSources(testutil.ScenarioRaw())
	return prov
}

func fixedID(id string) Option {
	return WithIDGenerator(func() string { return id })
}

func TestRun_Completed(t *testing.T) {
	prov := newScenarioProvider()
	alerts := &alertLog{}
	eng := New(prov, nil, WithAlertFunc(alerts.fn), fixedID("run-1"), WithWorkers(2))

	run, err := eng.Run(context.Background(), Params{EvaluatedAt: evaluatedAt, ChurnThresholdDays: 90, MinAffinitySupport: 1})
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, types.RunCompleted, run.Status)
	assert.Equal(t, evaluatedAt, run.EvaluatedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Len(t, run.Components, 13)
	for _, c := range run.Components {
		assert.Equal(t, types.ComponentSucceeded, c.Status, c.Name)
	}
	assert.Empty(t, alerts.alerts)

	facts := run.Component(NodeFacts)
	require.NotNil(t, facts)
	assert.Equal(t, 3, facts.Rows[mart.OrdersMart])

	stored, err := prov.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.Status)
	assert.Len(t, stored.Components, 13)

	assert.Empty(t, prov.Locks(), "lock released after the run")

	rfm, ok := prov.Table(mart.CustomerRFMMart)
	require.True(t, ok)
	rows := rfm.Rows.([]types.CustomerRFM)
	require.Len(t, rows, 2)
	bySegment := map[string]types.Segment{}
	for _, r := range rows {
		bySegment[r.CustomerUniqueID] = r.Segment
		assert.Equal(t, evaluatedAt, r.EvaluatedAt)
	}
	assert.Equal(t, types.SegmentNeverActive, bySegment["Y"])
	assert.Equal(t, 3, rows[indexOf(rows, "X")].Frequency)

	for _, name := range mart.Names(mart.KindDerived) {
		_, ok := prov.Table(name)
		assert.True(t, ok, "%s published", name)
	}
	for _, pub := range prov.Publications() {
		assert.Equal(t, "run-1", pub.RunID)
	}
}

func indexOf(rows []types.CustomerRFM, id string) int {
	for i, r := range rows {
		if r.CustomerUniqueID == id {
			return i
		}
	}
	return -1
}

func TestRun_DefaultsEvaluatedAtToClock(t *testing.T) {
	prov := newScenarioProvider()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	eng := New(prov, nil, WithClock(func() time.Time { return now }))

	run, err := eng.Run(context.Background(), Params{ChurnThresholdDays: 90})
	require.NoError(t, err)
	assert.Equal(t, now.UTC(), run.EvaluatedAt)
	assert.Equal(t, now.UTC(), run.StartedAt)
	assert.Len(t, run.RunID, 26, "ULID")
}

func TestRun_Locked(t *testing.T) {
	prov := newScenarioProvider()
	ok, err := prov.AcquireLock(context.Background(), LockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	run, err := New(prov, nil).Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	assert.ErrorIs(t, err, ErrLocked)
	assert.Nil(t, run)

	runs, err := prov.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, prov.Publications())
}

func TestRun_LockError(t *testing.T) {
	prov := newScenarioProvider()
	prov.FailOn("AcquireLock", errors.New("connection refused"))

	_, err := New(prov, nil).Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRun_SourceLoadFailure(t *testing.T) {
	prov := newScenarioProvider()
	prov.FailOn("LoadSources", errors.New("relation raw_orders does not exist"))
	alerts := &alertLog{}

	run, err := New(prov, nil, WithAlertFunc(alerts.fn), fixedID("run-src")).
		Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Contains(t, run.Error, "raw_orders")
	assert.Empty(t, run.Components)

	stored, err := prov.GetRun(context.Background(), "run-src")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, stored.Status)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, types.AlertLevelError, alerts.alerts[0].Level)
	assert.Empty(t, prov.Locks())
}

func TestRun_NonCriticalFailureIsPartial(t *testing.T) {
	prov := &tableFailer{MockProvider: newScenarioProvider(), table: mart.AffinityPairsMart}
	alerts := &alertLog{}

	run, err := New(prov, nil, WithAlertFunc(alerts.fn)).Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	require.NoError(t, err)
	assert.Equal(t, types.RunPartial, run.Status)

	aff := run.Component(NodeAffinity)
	require.NotNil(t, aff)
	assert.Equal(t, types.ComponentFailed, aff.Status)
	assert.Contains(t, aff.Error, "disk full")
	assert.Equal(t, types.ComponentSucceeded, run.Component(NodeRFM).Status)

	compAlerts := alerts.forComponent(NodeAffinity)
	require.Len(t, compAlerts, 1)
	assert.Equal(t, types.AlertLevelError, compAlerts[0].Level)

	_, published := prov.Table(mart.AffinityPairsMart)
	assert.False(t, published)
	_, published = prov.Table(mart.CustomerLTVMart)
	assert.True(t, published)
}

func TestRun_CriticalFailureFailsRun(t *testing.T) {
	prov := &tableFailer{MockProvider: newScenarioProvider(), table: mart.OrdersMart}

	run, err := New(prov, nil).Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, types.ComponentFailed, run.Component(NodeFacts).Status)
	for _, name := range []string{NodeLTV, NodeRFM, NodeAffinity, NodeCohorts} {
		c := run.Component(name)
		require.NotNil(t, c, name)
		assert.Equal(t, types.ComponentSkipped, c.Status, name)
	}
	assert.Equal(t, types.ComponentSucceeded, run.Component(NodeStaging).Status)
}

func TestRun_CancelledContextRecordsRun(t *testing.T) {
	prov := newScenarioProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := New(prov, nil, fixedID("run-cancel")).Run(ctx, Params{EvaluatedAt: evaluatedAt})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.NotEqual(t, types.RunCompleted, run.Status)

	stored, err := prov.GetRun(context.Background(), "run-cancel")
	require.NoError(t, err)
	assert.True(t, stored.Status == types.RunPartial || stored.Status == types.RunFailed)
	assert.NotNil(t, stored.FinishedAt)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
}

func (c *countingObserver) NodeStarted(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingObserver) NodeFinished(dag.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished++
}

func TestRun_Observer(t *testing.T) {
	obs := &countingObserver{}
	_, err := New(newScenarioProvider(), nil, WithObserver(obs)).Run(context.Background(), Params{EvaluatedAt: evaluatedAt})
	require.NoError(t, err)
	assert.Equal(t, 13, obs.started)
	assert.Equal(t, 13, obs.finished)
}

func TestNewGraph_Layout(t *testing.T) {
	g, err := NewGraph(Params{}, nil)
	require.NoError(t, err)

	critical := g.Critical()
	assert.True(t, critical[NodeStaging])
	assert.True(t, critical[NodeFacts])
	assert.Len(t, critical, 2)

	assert.ElementsMatch(t, []string{NodeFacts, NodeLTV, NodeRFM, NodeProducts, NodeSellers, NodeStates,
		NodeDelivery, NodeTrend, NodeBuyers, NodeCohorts, NodeRetention, NodeAffinity}, g.Dependents(NodeStaging))
	assert.Empty(t, g.Dependents(NodeAffinity))
}
