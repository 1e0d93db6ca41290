// Package export writes published tables to a directory or S3 as JSON documents.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
)

const defaultParallelism = 4

// TableReader is the subset of provider.Provider the exporter needs.
type TableReader interface {
	ReadTable(ctx context.Context, name string) ([]map[string]any, error)
}

// Target receives one encoded document per table.
type Target interface {
	Write(ctx context.Context, runID, table string, data []byte) error
	Name() string
}

// Document is the exported form of one table.
type Document struct {
	Table      string           `json:"table"`
	RunID      string           `json:"runId"`
	ExportedAt time.Time        `json:"exportedAt"`
	Columns    []string         `json:"columns"`
	Rows       []map[string]any `json:"rows"`
}

// Result reports what happened to one table.
type Result struct {
	Table   string
	Rows    int
	Skipped bool // never published
}

// Exporter copies published tables to a Target.
type Exporter struct {
	reader      TableReader
	target      Target
	logger      *slog.Logger
	parallelism int
	now         func() time.Time
}

// New creates an Exporter.
func New(reader TableReader, target Target, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		reader:      reader,
		target:      target,
		logger:      logger,
		parallelism: defaultParallelism,
		now:         time.Now,
	}
}

// Export writes each named table, or every derived table when names is
// empty, labelled with runID. Tables that were never published are skipped.
// Results are sorted by table name.
func (e *Exporter) Export(ctx context.Context, runID string, names []string) ([]Result, error) {
	if len(names) == 0 {
		names = mart.Names(mart.KindDerived)
	}
	schemas := make([]mart.Schema, len(names))
	for i, n := range names {
		s, err := mart.Lookup(n)
		if err != nil {
			return nil, err
		}
		schemas[i] = s
	}

	results := make([]Result, len(schemas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, s := range schemas {
		i, s := i, s
		g.Go(func() error {
			res, err := e.exportOne(gctx, runID, s)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Table < results[j].Table })
	return results, nil
}

func (e *Exporter) exportOne(ctx context.Context, runID string, s mart.Schema) (Result, error) {
	rows, err := e.reader.ReadTable(ctx, s.Name)
	if errors.Is(err, provider.ErrNotFound) {
		e.logger.Warn("table not published, skipping export", "table", s.Name)
		return Result{Table: s.Name, Skipped: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", s.Name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.Marshal(Document{
		Table:      s.Name,
		RunID:      runID,
		ExportedAt: e.now().UTC(),
		Columns:    s.ColumnNames(),
		Rows:       rows,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", s.Name, err)
	}
	if err := e.target.Write(ctx, runID, s.Name, data); err != nil {
		return Result{}, err
	}
	e.logger.Debug("exported table", "table", s.Name, "rows", len(rows), "target", e.target.Name())
	return Result{Table: s.Name, Rows: len(rows)}, nil
}
