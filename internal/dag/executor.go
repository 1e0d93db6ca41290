package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/ledgerlens/internal/lifecycle"
	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

var (
	// ErrPanic wraps a panic recovered from a node.
	ErrPanic = errors.New("node panicked")
	// ErrUpstreamFailed is the reason recorded on skipped dependents.
	ErrUpstreamFailed = errors.New("upstream failed")
)

// Result is the outcome of one node.
type Result struct {
	Node      string
	Status    types.ComponentStatus
	Err       error
	Outputs   []mart.Table
	StartedAt time.Time
	Duration  time.Duration
}

// CommitFunc is called from the worker after a node succeeds, before its
// dependents are released. A commit error fails the node.
type CommitFunc func(ctx context.Context, node Node, outputs []mart.Table) error

// Observer receives node state changes. Calls come from the scheduling
// goroutine and never overlap.
type Observer interface {
	NodeStarted(name string)
	NodeFinished(r Result)
}

type multiObserver []Observer

func (m multiObserver) NodeStarted(name string) {
	for _, o := range m {
		o.NodeStarted(name)
	}
}

func (m multiObserver) NodeFinished(r Result) {
	for _, o := range m {
		o.NodeFinished(r)
	}
}

// Observers fans state changes out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

// Executor runs a graph on a bounded worker pool.
type Executor struct {
	workers  int
	logger   *slog.Logger
	tracer   trace.Tracer
	commit   CommitFunc
	observer Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers bounds concurrent nodes. Non-positive values use runtime.NumCPU.
func WithWorkers(n int) Option { return func(e *Executor) { e.workers = n } }

// WithCommit sets the function that persists a node's outputs.
func WithCommit(fn CommitFunc) Option { return func(e *Executor) { e.commit = fn } }

// WithObserver registers an observer for node state changes.
func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

// WithTracer overrides the otel tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// NewExecutor creates an executor.
func NewExecutor(logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{logger: logger, tracer: otel.Tracer("github.com/dwsmith1983/ledgerlens/dag")}
	for _, o := range opts {
		o(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// Execute runs every node whose upstream succeeded. A failed node marks its
// transitive dependents skipped; independent nodes continue. Cancelling ctx
// stops new nodes from starting and waits for running ones. Results come back
// in topological order.
func (e *Executor) Execute(ctx context.Context, g *Graph, sources mart.Dataset) []Result {
	nodes := g.order
	results := make(map[string]*Result, len(nodes))
	status := make(map[string]types.ComponentStatus, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		status[n.Name] = types.ComponentPending
		indegree[n.Name] = len(g.upstream[n.Name])
	}

	tables := make(mart.Dataset, len(sources))
	for name, t := range sources {
		tables[name] = t
	}

	// Buffered so workers never block while the scheduler waits in pool.Go.
	done := make(chan Result, len(nodes))
	var pool errgroup.Group
	pool.SetLimit(e.workers)

	finish := func(r Result) {
		if err := lifecycle.TransitionComponent(status[r.Node], r.Status); err != nil {
			e.logger.Error("component state", "node", r.Node, "error", err)
		}
		status[r.Node] = r.Status
		rr := r
		results[r.Node] = &rr
		if e.observer != nil {
			e.observer.NodeFinished(r)
		}
	}

	skip := func(name string, reason error) {
		if status[name] != types.ComponentPending {
			return
		}
		finish(Result{Node: name, Status: types.ComponentSkipped, Err: reason})
	}

	running := 0
	launch := func(n Node) {
		if err := ctx.Err(); err != nil {
			reason := fmt.Errorf("not started: %w", err)
			skip(n.Name, reason)
			for _, d := range g.Dependents(n.Name) {
				skip(d, reason)
			}
			return
		}
		in := make(mart.Dataset, len(n.Inputs))
		for _, name := range n.Inputs {
			in[name] = tables[name]
		}
		status[n.Name] = types.ComponentRunning
		if e.observer != nil {
			e.observer.NodeStarted(n.Name)
		}
		running++
		pool.Go(func() error {
			done <- e.runNode(ctx, n, in)
			return nil
		})
	}

	for _, n := range nodes {
		if indegree[n.Name] == 0 {
			launch(n)
		}
	}

	for running > 0 {
		r := <-done
		running--
		finish(r)

		if r.Status != types.ComponentSucceeded {
			e.logger.Error("component failed", "node", r.Node, "error", r.Err)
			for _, d := range g.Dependents(r.Node) {
				skip(d, fmt.Errorf("%s: %w", r.Node, ErrUpstreamFailed))
			}
			continue
		}

		for _, t := range r.Outputs {
			tables[t.Name] = t
		}
		for _, d := range g.downstream[r.Node] {
			indegree[d]--
			if indegree[d] == 0 && status[d] == types.ComponentPending {
				n, _ := g.Node(d)
				launch(n)
			}
		}
	}
	_ = pool.Wait()

	out := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		if r, ok := results[n.Name]; ok {
			out = append(out, *r)
			continue
		}
		// Not reached for a valid graph.
		out = append(out, Result{Node: n.Name, Status: types.ComponentSkipped, Err: ErrUpstreamFailed})
	}
	return out
}

func (e *Executor) runNode(ctx context.Context, n Node, in mart.Dataset) (r Result) {
	ctx, span := e.tracer.Start(ctx, "component "+n.Name,
		trace.WithAttributes(attribute.String("ledgerlens.component", n.Name)))
	defer span.End()

	r = Result{Node: n.Name, StartedAt: time.Now()}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("component panic", "node", n.Name, "panic", p, "stack", string(debug.Stack()))
			r.Status = types.ComponentFailed
			r.Err = fmt.Errorf("%v: %w", p, ErrPanic)
			r.Outputs = nil
		}
		r.Duration = time.Since(r.StartedAt)
		if r.Err != nil {
			span.RecordError(r.Err)
			span.SetStatus(codes.Error, r.Err.Error())
		}
	}()

	outputs, err := n.Run(ctx, in)
	if err != nil {
		r.Status, r.Err = types.ComponentFailed, err
		return r
	}
	if err := checkOutputs(n, outputs); err != nil {
		r.Status, r.Err = types.ComponentFailed, err
		return r
	}
	if e.commit != nil {
		if err := e.commit(ctx, n, outputs); err != nil {
			r.Status, r.Err = types.ComponentFailed, fmt.Errorf("commit: %w", err)
			return r
		}
	}
	r.Status, r.Outputs = types.ComponentSucceeded, outputs
	return r
}

// checkOutputs verifies a node returned exactly its declared tables, each with
// the row type the catalog registers.
func checkOutputs(n Node, outputs []mart.Table) error {
	declared := make(map[string]bool, len(n.Outputs))
	for _, name := range n.Outputs {
		declared[name] = true
	}
	got := make(map[string]bool, len(outputs))
	for _, t := range outputs {
		if !declared[t.Name] {
			return fmt.Errorf("undeclared output %s: %w", t.Name, mart.ErrSchemaMismatch)
		}
		if got[t.Name] {
			return fmt.Errorf("output %s returned twice: %w", t.Name, mart.ErrSchemaMismatch)
		}
		got[t.Name] = true
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, name := range n.Outputs {
		if !got[name] {
			return fmt.Errorf("missing output %s: %w", name, mart.ErrSchemaMismatch)
		}
	}
	return nil
}
