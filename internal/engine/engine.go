// Package engine runs the derived-metrics graph against a store: it takes the
// publish lock, loads the raw snapshot, executes every component, publishes
// each component's outputs and records the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/internal/lifecycle"
	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/metrics"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// LockKey guards a whole run against concurrent runs on the same store.
const LockKey = "publish"

const defaultLockTTL = 15 * time.Minute

// ErrLocked is returned when another run holds the publish lock.
var ErrLocked = errors.New("another run holds the publish lock")

// Engine executes runs. It is safe to reuse across runs but runs on one
// store are serialized by the publish lock.
type Engine struct {
	provider provider.Provider
	logger   *slog.Logger
	alertFn  func(context.Context, types.Alert)
	recorder *metrics.Recorder
	observer dag.Observer
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
	workers  int
	lockTTL  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlertFunc sets the callback that receives run and component alerts.
func WithAlertFunc(fn func(context.Context, types.Alert)) Option {
	return func(e *Engine) { e.alertFn = fn }
}

// WithRecorder records run, component and publish metrics.
func WithRecorder(r *metrics.Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithObserver receives component state changes, e.g. for a progress display.
func WithObserver(o dag.Observer) Option { return func(e *Engine) { e.observer = o } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// WithWorkers bounds the number of components running at once.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithLockTTL sets how long the publish lock survives a crashed run.
func WithLockTTL(d time.Duration) Option { return func(e *Engine) { e.lockTTL = d } }

// New creates an Engine over p.
func New(p provider.Provider, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		provider: p,
		logger:   logger,
		tracer:   otel.Tracer("github.com/dwsmith1983/ledgerlens/engine"),
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
		lockTTL:  defaultLockTTL,
	}
	for _, o := range opts {
		o(e)
	}
	if e.lockTTL <= 0 {
		e.lockTTL = defaultLockTTL
	}
	return e
}

// Run executes one full run. The returned record is the one persisted in the
// run ledger; it is non-nil whenever a run id was allocated. A component
// failure is not an error: it is reported through the record's status.
func (e *Engine) Run(ctx context.Context, p Params) (*types.RunRecord, error) {
	started := e.now().UTC()
	if p.EvaluatedAt.IsZero() {
		p.EvaluatedAt = started
	}
	p.EvaluatedAt = p.EvaluatedAt.UTC()

	g, err := NewGraph(p, e.logger)
	if err != nil {
		return nil, fmt.Errorf("building component graph: %w", err)
	}

	ok, err := e.provider.AcquireLock(ctx, LockKey, e.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring publish lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := e.provider.ReleaseLock(context.WithoutCancel(ctx), LockKey); err != nil {
			e.logger.Error("releasing publish lock", "error", err)
		}
	}()

	run := &types.RunRecord{
		RunID:              e.newID(),
		Status:             types.RunPending,
		EvaluatedAt:        p.EvaluatedAt,
		ChurnThresholdDays: p.ChurnThresholdDays,
		StartedAt:          started,
	}
	logger := e.logger.With("run_id", run.RunID)

	ctx, span := e.tracer.Start(ctx, "ledgerlens.run", trace.WithAttributes(
		attribute.String("run.id", run.RunID),
		attribute.String("run.evaluated_at", p.EvaluatedAt.Format(time.RFC3339)),
	))
	defer span.End()

	if err := e.advance(ctx, run, types.RunRunning); err != nil {
		return run, err
	}
	logger.Info("run started", "evaluated_at", p.EvaluatedAt, "churn_threshold_days", p.ChurnThresholdDays)

	raw, err := e.provider.LoadSources(ctx)
	if err != nil {
		err = fmt.Errorf("loading sources: %w", err)
		run.Error = err.Error()
		span.SetStatus(codes.Error, run.Error)
		e.finish(ctx, logger, run, types.RunFailed)
		return run, err
	}

	exec := dag.NewExecutor(logger,
		dag.WithWorkers(e.workers),
		dag.WithCommit(e.commit(run.RunID)),
		dag.WithObserver(dag.Observers(e.observer, e.nodeObserver())),
	)
	results := exec.Execute(ctx, g, sourceDataset(raw))

	run.Components = componentResults(results)
	status := lifecycle.RunOutcome(run.Components, g.Critical())
	for _, c := range run.Components {
		if c.Status == types.ComponentFailed {
			e.alert(ctx, types.Alert{
				Level:     types.AlertLevelError,
				RunID:     run.RunID,
				Component: c.Name,
				Message:   fmt.Sprintf("component %s failed: %s", c.Name, c.Error),
			})
		}
	}

	var runErr error
	if ctxErr := ctx.Err(); ctxErr != nil {
		runErr = fmt.Errorf("run interrupted: %w", ctxErr)
		run.Error = runErr.Error()
		if status == types.RunCompleted {
			status = types.RunPartial
		}
	}
	if status != types.RunCompleted {
		span.SetStatus(codes.Error, string(status))
	}
	e.finish(ctx, logger, run, status)
	return run, runErr
}

// advance moves the run through the lifecycle and persists it.
func (e *Engine) advance(ctx context.Context, run *types.RunRecord, to types.RunStatus) error {
	if err := lifecycle.Transition(run.Status, to); err != nil {
		return err
	}
	run.Status = to
	if err := e.provider.PutRun(ctx, *run); err != nil {
		return fmt.Errorf("recording run %s: %w", run.RunID, err)
	}
	return nil
}

// finish records the terminal status. It persists even when ctx was
// cancelled so an interrupted run never stays RUNNING in the ledger.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, run *types.RunRecord, status types.RunStatus) {
	ctx = context.WithoutCancel(ctx)
	finished := e.now().UTC()
	run.FinishedAt = &finished

	if err := e.advance(ctx, run, status); err != nil {
		logger.Error("recording run outcome", "status", status, "error", err)
	}
	if e.recorder != nil {
		e.recorder.RunFinished(ctx, status)
	}

	attrs := []any{"status", status, "duration", finished.Sub(run.StartedAt)}
	switch status {
	case types.RunCompleted:
		logger.Info("run completed", attrs...)
		return
	case types.RunPartial:
		logger.Warn("run partially completed", attrs...)
	default:
		logger.Error("run failed", append(attrs, "error", run.Error)...)
	}

	level := types.AlertLevelWarning
	if status == types.RunFailed {
		level = types.AlertLevelError
	}
	e.alert(ctx, types.Alert{
		Level:   level,
		RunID:   run.RunID,
		Message: fmt.Sprintf("run %s finished %s", run.RunID, status),
		Details: map[string]interface{}{"failed": namesWith(run.Components, types.ComponentFailed), "skipped": namesWith(run.Components, types.ComponentSkipped)},
	})
}

// commit publishes a node's outputs under the run id as one atomic set.
func (e *Engine) commit(runID string) dag.CommitFunc {
	return func(ctx context.Context, node dag.Node, outputs []mart.Table) error {
		if err := e.provider.Publish(ctx, runID, outputs); err != nil {
			return fmt.Errorf("publishing %s: %w", node.Name, err)
		}
		if e.recorder != nil {
			for _, t := range outputs {
				e.recorder.RowsPublished(ctx, t.Name, t.Len())
			}
		}
		return nil
	}
}

func (e *Engine) nodeObserver() dag.Observer {
	if e.recorder == nil {
		return nil
	}
	return e.recorder
}

func (e *Engine) alert(ctx context.Context, a types.Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = e.now().UTC()
	}
	if e.recorder != nil {
		e.recorder.AlertDispatched(ctx, a.Level)
	}
	if e.alertFn != nil {
		e.alertFn(ctx, a)
	}
}

func componentResults(results []dag.Result) []types.ComponentResult {
	out := make([]types.ComponentResult, 0, len(results))
	for _, r := range results {
		c := types.ComponentResult{
			Name:     r.Node,
			Status:   r.Status,
			Duration: r.Duration,
		}
		if !r.StartedAt.IsZero() {
			at := r.StartedAt.UTC()
			c.StartedAt = &at
		}
		if r.Err != nil {
			c.Error = r.Err.Error()
		}
		if r.Status == types.ComponentSucceeded && len(r.Outputs) > 0 {
			c.Rows = make(map[string]int, len(r.Outputs))
			for _, t := range r.Outputs {
				c.Rows[t.Name] = t.Len()
			}
		}
		out = append(out, c)
	}
	return out
}

func namesWith(components []types.ComponentResult, status types.ComponentStatus) []string {
	var names []string
	for _, c := range components {
		if c.Status == status {
			names = append(names, c.Name)
		}
	}
	return names
}
