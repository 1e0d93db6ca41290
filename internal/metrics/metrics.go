// Package metrics records run counters and component timings via OpenTelemetry.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dwsmith1983/ledgerlens/internal/dag"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

const meterName = "github.com/dwsmith1983/ledgerlens"

// Recorder holds the engine's instruments. It satisfies dag.Observer.
type Recorder struct {
	runs              metric.Int64Counter
	componentDuration metric.Float64Histogram
	componentResults  metric.Int64Counter
	rowsPublished     metric.Int64Counter
	alertsDispatched  metric.Int64Counter
}

var _ dag.Observer = (*Recorder)(nil)

// NewRecorder creates the instruments on mp, or on the global provider when mp is nil.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	var (
		r   Recorder
		err error
	)
	if r.runs, err = m.Int64Counter("ledgerlens.runs",
		metric.WithDescription("Engine runs by final status")); err != nil {
		return nil, err
	}
	if r.componentDuration, err = m.Float64Histogram("ledgerlens.component.duration",
		metric.WithDescription("Component execution time"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.componentResults, err = m.Int64Counter("ledgerlens.component.results",
		metric.WithDescription("Component outcomes by status")); err != nil {
		return nil, err
	}
	if r.rowsPublished, err = m.Int64Counter("ledgerlens.rows.published",
		metric.WithDescription("Rows published per table")); err != nil {
		return nil, err
	}
	if r.alertsDispatched, err = m.Int64Counter("ledgerlens.alerts",
		metric.WithDescription("Alerts dispatched by level")); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recorder) NodeStarted(string) {}

// NodeFinished records the outcome and, for executed nodes, the duration.
func (r *Recorder) NodeFinished(res dag.Result) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("component", res.Node),
		attribute.String("status", string(res.Status)),
	)
	r.componentResults.Add(ctx, 1, attrs)
	if res.Status != types.ComponentSkipped {
		r.componentDuration.Record(ctx, res.Duration.Seconds(), attrs)
	}
}

// RunFinished counts one run by status.
func (r *Recorder) RunFinished(ctx context.Context, status types.RunStatus) {
	r.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// RowsPublished counts rows written to table.
func (r *Recorder) RowsPublished(ctx context.Context, table string, n int) {
	r.rowsPublished.Add(ctx, int64(n), metric.WithAttributes(attribute.String("table", table)))
}

// AlertDispatched counts one alert.
func (r *Recorder) AlertDispatched(ctx context.Context, level types.AlertLevel) {
	r.alertsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("level", string(level))))
}
