package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// BreakerConfig holds circuit breaker settings for store calls.
type BreakerConfig struct {
	FailThreshold uint32        // consecutive failures before opening (default 5)
	Cooldown      time.Duration // how long to stay open before half-open (default 30s)
	FailWindow    time.Duration // closed-state counters reset after this long (default 60s)
}

// DefaultBreakerConfig returns the default config.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailThreshold: 5,
		Cooldown:      30 * time.Second,
		FailWindow:    60 * time.Second,
	}
}

// Breaker wraps a Provider with a circuit breaker over store calls.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

var _ Provider = (*Breaker)(nil)

// WithBreaker decorates p with a circuit breaker. Not-found results and
// context cancellation do not count as failures.
func WithBreaker(p Provider, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = def.FailThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.FailWindow <= 0 {
		cfg.FailWindow = def.FailWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{
		inner: p,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "provider",
			Interval: cfg.FailWindow,
			Timeout:  cfg.Cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.FailThreshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound) ||
					errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("store circuit breaker", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (b *Breaker) LoadSources(ctx context.Context) (*types.RawSnapshot, error) {
	var snap *types.RawSnapshot
	err := b.do(func() (err error) {
		snap, err = b.inner.LoadSources(ctx)
		return err
	})
	return snap, err
}

func (b *Breaker) Publish(ctx context.Context, runID string, tables []mart.Table) error {
	return b.do(func() error { return b.inner.Publish(ctx, runID, tables) })
}

func (b *Breaker) ReadTable(ctx context.Context, name string) ([]map[string]any, error) {
	var rows []map[string]any
	err := b.do(func() (err error) {
		rows, err = b.inner.ReadTable(ctx, name)
		return err
	})
	return rows, err
}

func (b *Breaker) PutRun(ctx context.Context, run types.RunRecord) error {
	return b.do(func() error { return b.inner.PutRun(ctx, run) })
}

func (b *Breaker) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	var run *types.RunRecord
	err := b.do(func() (err error) {
		run, err = b.inner.GetRun(ctx, runID)
		return err
	})
	return run, err
}

func (b *Breaker) ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	var runs []types.RunRecord
	err := b.do(func() (err error) {
		runs, err = b.inner.ListRuns(ctx, limit)
		return err
	})
	return runs, err
}

func (b *Breaker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := b.do(func() (err error) {
		ok, err = b.inner.AcquireLock(ctx, key, ttl)
		return err
	})
	return ok, err
}

// ReleaseLock bypasses the breaker so a held lock is always released when possible.
func (b *Breaker) ReleaseLock(ctx context.Context, key string) error {
	return b.inner.ReleaseLock(ctx, key)
}

func (b *Breaker) Start(ctx context.Context) error { return b.inner.Start(ctx) }

func (b *Breaker) Stop(ctx context.Context) error { return b.inner.Stop(ctx) }

func (b *Breaker) Ping(ctx context.Context) error {
	return b.do(func() error { return b.inner.Ping(ctx) })
}
