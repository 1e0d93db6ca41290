// Package provider defines the storage backend interface for ledgerlens.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// ErrNotFound is returned when a run or table does not exist in the store.
var ErrNotFound = errors.New("not found")

// Provider is the storage backend interface. Postgres is the analytical
// store; Redis/Valkey is the lightweight alternative.
type Provider interface {
	// Source tables, written by the external loader
	LoadSources(ctx context.Context) (*types.RawSnapshot, error)

	// Published tables. Publish replaces every table in the set atomically:
	// readers see either all old rows or all new rows.
	Publish(ctx context.Context, runID string, tables []mart.Table) error
	ReadTable(ctx context.Context, name string) ([]map[string]any, error)

	// Run ledger
	PutRun(ctx context.Context, run types.RunRecord) error
	GetRun(ctx context.Context, runID string) (*types.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error)

	// Distributed locking for run exclusion
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
