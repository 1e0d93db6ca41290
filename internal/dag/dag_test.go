package dag

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// emit returns a RunFunc publishing empty tables of the right row types.
func emit(tables ...string) RunFunc {
	return func(_ context.Context, _ mart.Dataset) ([]mart.Table, error) {
		out := make([]mart.Table, 0, len(tables))
		for _, name := range tables {
			s, err := mart.Lookup(name)
			if err != nil {
				return nil, err
			}
			out = append(out, mart.Table{Name: name, Rows: emptyRows(s)})
		}
		return out, nil
	}
}

func emptyRows(s mart.Schema) any {
	switch s.Name {
	case mart.OrdersMart:
		return []types.OrderFact{}
	case mart.OrderLinesMart:
		return []types.OrderLine{}
	case mart.CustomerLTVMart:
		return []types.CustomerLTV{}
	case mart.MonthlyTrendMart:
		return []types.MonthlyTrend{}
	case mart.AffinityPairsMart:
		return []types.AffinityPair{}
	case mart.StgOrders:
		return []types.Order{}
	}
	panic("no fixture rows for " + s.Name)
}

func fail(err error) RunFunc {
	return func(context.Context, mart.Dataset) ([]mart.Table, error) { return nil, err }
}

func pipeline(t *testing.T, overrides map[string]RunFunc) *Graph {
	t.Helper()
	run := func(name string, def RunFunc) RunFunc {
		if fn, ok := overrides[name]; ok {
			return fn
		}
		return def
	}
	g, err := New([]string{mart.RawOrders},
		Node{Name: "staging", Inputs: []string{mart.RawOrders}, Outputs: []string{mart.StgOrders}, Critical: true,
			Run: run("staging", emit(mart.StgOrders))},
		Node{Name: "facts", Inputs: []string{mart.StgOrders}, Outputs: []string{mart.OrdersMart, mart.OrderLinesMart},
			Critical: true, Run: run("facts", emit(mart.OrdersMart, mart.OrderLinesMart))},
		Node{Name: "ltv", Inputs: []string{mart.OrdersMart}, Outputs: []string{mart.CustomerLTVMart},
			Run: run("ltv", emit(mart.CustomerLTVMart))},
		Node{Name: "trend", Inputs: []string{mart.OrdersMart}, Outputs: []string{mart.MonthlyTrendMart},
			Run: run("trend", emit(mart.MonthlyTrendMart))},
		Node{Name: "affinity", Inputs: []string{mart.OrderLinesMart}, Outputs: []string{mart.AffinityPairsMart},
			Run: run("affinity", emit(mart.AffinityPairsMart))},
	)
	require.NoError(t, err)
	return g
}

func statuses(results []Result) map[string]types.ComponentStatus {
	out := map[string]types.ComponentStatus{}
	for _, r := range results {
		out[r.Node] = r.Status
	}
	return out
}

func TestNew_TopologicalOrder(t *testing.T) {
	g := pipeline(t, nil)
	var names []string
	for _, n := range g.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"staging", "facts", "affinity", "ltv", "trend"}, names)
	assert.Equal(t, []string{"affinity", "facts", "ltv", "trend"}, sortedCopy(g.Dependents("staging")))
	assert.Equal(t, []string{"facts"}, g.Upstream("ltv"))
	assert.Equal(t, "facts", g.Producer(mart.OrdersMart))
	assert.Equal(t, map[string]bool{"staging": true, "facts": true}, g.Critical())
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestNew_Validation(t *testing.T) {
	noop := emit()

	_, err := New(nil,
		Node{Name: "a", Inputs: []string{mart.OrdersMart}, Outputs: []string{mart.CustomerLTVMart}, Run: noop},
		Node{Name: "b", Inputs: []string{mart.CustomerLTVMart}, Outputs: []string{mart.OrdersMart}, Run: noop},
	)
	assert.True(t, errors.Is(err, ErrCycle), "got %v", err)

	_, err = New(nil,
		Node{Name: "a", Inputs: []string{mart.OrdersMart}, Outputs: []string{mart.OrdersMart}, Run: noop},
	)
	assert.True(t, errors.Is(err, ErrCycle), "got %v", err)

	_, err = New(nil,
		Node{Name: "a", Outputs: []string{mart.OrdersMart}, Run: noop},
		Node{Name: "b", Outputs: []string{mart.OrdersMart}, Run: noop},
	)
	assert.True(t, errors.Is(err, ErrDuplicateOutput), "got %v", err)

	_, err = New(nil, Node{Name: "a", Inputs: []string{mart.StgOrders}, Outputs: []string{mart.OrdersMart}, Run: noop})
	assert.True(t, errors.Is(err, ErrUnresolvedInput), "got %v", err)

	_, err = New(nil, Node{Name: "a", Outputs: []string{"not_a_table"}, Run: noop})
	assert.True(t, errors.Is(err, mart.ErrUnknownTable), "got %v", err)

	_, err = New(nil,
		Node{Name: "a", Outputs: []string{mart.OrdersMart}, Run: noop},
		Node{Name: "a", Outputs: []string{mart.CustomerLTVMart}, Run: noop},
	)
	assert.True(t, errors.Is(err, ErrDuplicateNode), "got %v", err)

	_, err = New([]string{mart.RawOrders}, Node{Name: "a", Outputs: []string{mart.RawOrders}, Run: noop})
	assert.True(t, errors.Is(err, ErrDuplicateOutput), "got %v", err)
}

func TestExecute_AllSucceed(t *testing.T) {
	var commits sync.Map
	ex := NewExecutor(nil, WithWorkers(2), WithCommit(func(_ context.Context, n Node, out []mart.Table) error {
		commits.Store(n.Name, len(out))
		return nil
	}))

	results := ex.Execute(context.Background(), pipeline(t, nil), mart.Dataset{})
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, types.ComponentSucceeded, r.Status, r.Node)
		assert.NoError(t, r.Err)
	}
	n, ok := commits.Load("facts")
	require.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestExecute_FailureSkipsOnlyDependents(t *testing.T) {
	boom := errors.New("boom")
	results := NewExecutor(nil).Execute(context.Background(),
		pipeline(t, map[string]RunFunc{"ltv": fail(boom)}), mart.Dataset{})

	st := statuses(results)
	assert.Equal(t, types.ComponentFailed, st["ltv"])
	assert.Equal(t, types.ComponentSucceeded, st["trend"])
	assert.Equal(t, types.ComponentSucceeded, st["affinity"])
	for _, r := range results {
		if r.Node == "ltv" {
			assert.ErrorIs(t, r.Err, boom)
		}
	}
}

func TestExecute_CriticalFailureSkipsDownstream(t *testing.T) {
	results := NewExecutor(nil).Execute(context.Background(),
		pipeline(t, map[string]RunFunc{"facts": fail(errors.New("bad input"))}), mart.Dataset{})

	st := statuses(results)
	assert.Equal(t, types.ComponentSucceeded, st["staging"])
	assert.Equal(t, types.ComponentFailed, st["facts"])
	for _, name := range []string{"ltv", "trend", "affinity"} {
		assert.Equal(t, types.ComponentSkipped, st[name], name)
	}
	for _, r := range results {
		if r.Status == types.ComponentSkipped {
			assert.ErrorIs(t, r.Err, ErrUpstreamFailed)
		}
	}
}

func TestExecute_PanicIsRecovered(t *testing.T) {
	results := NewExecutor(nil).Execute(context.Background(), pipeline(t, map[string]RunFunc{
		"trend": func(context.Context, mart.Dataset) ([]mart.Table, error) { panic("nil map") },
	}), mart.Dataset{})

	for _, r := range results {
		if r.Node == "trend" {
			assert.Equal(t, types.ComponentFailed, r.Status)
			assert.ErrorIs(t, r.Err, ErrPanic)
		}
	}
	assert.Equal(t, types.ComponentSucceeded, statuses(results)["ltv"])
}

func TestExecute_SchemaMismatchFailsNode(t *testing.T) {
	results := NewExecutor(nil).Execute(context.Background(), pipeline(t, map[string]RunFunc{
		"ltv": func(context.Context, mart.Dataset) ([]mart.Table, error) {
			return []mart.Table{{Name: mart.CustomerLTVMart, Rows: []types.MonthlyTrend{}}}, nil
		},
		"trend": emit(),
	}), mart.Dataset{})

	for _, r := range results {
		switch r.Node {
		case "ltv":
			assert.ErrorIs(t, r.Err, mart.ErrSchemaMismatch)
		case "trend":
			assert.ErrorIs(t, r.Err, mart.ErrSchemaMismatch, "missing declared output")
		}
	}
}

func TestExecute_CommitFailureSkipsDependents(t *testing.T) {
	ex := NewExecutor(nil, WithCommit(func(_ context.Context, n Node, _ []mart.Table) error {
		if n.Name == "facts" {
			return errors.New("store down")
		}
		return nil
	}))
	st := statuses(ex.Execute(context.Background(), pipeline(t, nil), mart.Dataset{}))
	assert.Equal(t, types.ComponentFailed, st["facts"])
	assert.Equal(t, types.ComponentSkipped, st["ltv"])
}

func TestExecute_PassesDeclaredInputsOnly(t *testing.T) {
	var seen []string
	g, err := New([]string{mart.RawOrders, mart.RawCustomers},
		Node{Name: "staging", Inputs: []string{mart.RawOrders}, Outputs: []string{mart.StgOrders},
			Run: func(_ context.Context, in mart.Dataset) ([]mart.Table, error) {
				for name := range in {
					seen = append(seen, name)
				}
				return emit(mart.StgOrders)(context.Background(), in)
			}},
	)
	require.NoError(t, err)

	src := mart.Dataset{}
	src.Put(mart.RawOrders, []types.RawOrder{})
	src.Put(mart.RawCustomers, []types.RawCustomer{})
	NewExecutor(nil).Execute(context.Background(), g, src)
	assert.Equal(t, []string{mart.RawOrders}, seen)
}

func TestExecute_BoundedParallelism(t *testing.T) {
	var current, peak int32
	slow := func(table string) RunFunc {
		return func(ctx context.Context, in mart.Dataset) ([]mart.Table, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return emit(table)(ctx, in)
		}
	}
	g := pipeline(t, map[string]RunFunc{
		"ltv":      slow(mart.CustomerLTVMart),
		"trend":    slow(mart.MonthlyTrendMart),
		"affinity": slow(mart.AffinityPairsMart),
	})

	NewExecutor(nil, WithWorkers(1)).Execute(context.Background(), g, mart.Dataset{})
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))

	atomic.StoreInt32(&peak, 0)
	NewExecutor(nil, WithWorkers(3)).Execute(context.Background(), g, mart.Dataset{})
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestExecute_CancelledContextSkipsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := pipeline(t, map[string]RunFunc{
		"staging": func(ctx context.Context, in mart.Dataset) ([]mart.Table, error) {
			cancel()
			return emit(mart.StgOrders)(ctx, in)
		},
	})

	st := statuses(NewExecutor(nil).Execute(ctx, g, mart.Dataset{}))
	assert.Equal(t, types.ComponentSucceeded, st["staging"])
	for _, name := range []string{"facts", "ltv", "trend", "affinity"} {
		assert.Equal(t, types.ComponentSkipped, st[name], name)
	}
}

type recorder struct {
	started  []string
	finished []types.ComponentStatus
}

func (r *recorder) NodeStarted(name string) { r.started = append(r.started, name) }
func (r *recorder) NodeFinished(res Result) { r.finished = append(r.finished, res.Status) }

func TestExecute_Observer(t *testing.T) {
	rec := &recorder{}
	NewExecutor(nil, WithObserver(rec)).Execute(context.Background(), pipeline(t, nil), mart.Dataset{})
	assert.Len(t, rec.started, 5)
	assert.Len(t, rec.finished, 5)
	assert.Equal(t, "staging", rec.started[0])
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	NewExecutor(nil, WithObserver(Observers(a, nil, b))).Execute(context.Background(), pipeline(t, nil), mart.Dataset{})
	assert.Len(t, a.finished, 5)
	assert.Equal(t, a.started, b.started)
}
