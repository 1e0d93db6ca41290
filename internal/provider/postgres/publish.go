package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
)

// publishLockID serializes publishers across processes for the duration of one transaction.
var publishLockID = advisoryKey("ledgerlens:publish")

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// Publish replaces every table in one transaction. Each table is cleared and
// bulk-loaded with COPY; readers see the old rows until commit.
func (s *Store) Publish(ctx context.Context, runID string, tables []mart.Table) error {
	if len(tables) == 0 {
		return nil
	}
	type prepared struct {
		name string
		cols []string
		rows [][]any
	}
	batch := make([]prepared, 0, len(tables))
	for _, t := range tables {
		schema, err := mart.Lookup(t.Name)
		if err != nil {
			return err
		}
		if schema.Kind == mart.KindSource {
			return fmt.Errorf("publish %s: source tables are read-only", t.Name)
		}
		values, err := schema.Values(t.Rows)
		if err != nil {
			return err
		}
		for _, row := range values {
			for i, v := range row {
				row[i] = encodeValue(v)
			}
		}
		batch = append(batch, prepared{name: t.Name, cols: schema.ColumnNames(), rows: values})
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", publishLockID); err != nil {
		return fmt.Errorf("publish lock: %w", err)
	}

	for _, p := range batch {
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{p.name}.Sanitize()); err != nil {
			return fmt.Errorf("clear %s: %w", p.name, err)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{p.name}, p.cols, pgx.CopyFromRows(p.rows))
		if err != nil {
			return fmt.Errorf("copy %s: %w", p.name, err)
		}
		query, args, err := psql.Insert("ledgerlens_publications").
			Columns("table_name", "run_id", "row_count").
			Values(p.name, runID, n).
			Suffix(`ON CONFLICT (table_name) DO UPDATE SET
				run_id       = EXCLUDED.run_id,
				row_count    = EXCLUDED.row_count,
				published_at = NOW()`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build publication record: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("record publication of %s: %w", p.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	s.logger.Debug("published tables", "runId", runID, "tables", len(batch))
	return nil
}

// ReadTable returns the published rows of name in key order.
func (s *Store) ReadTable(ctx context.Context, name string) ([]map[string]any, error) {
	schema, err := mart.Lookup(name)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize()
	}
	query, args, err := psql.Select(cols...).
		From(pgx.Identifier{name}.Sanitize()).
		OrderBy(schema.Key...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", name, err)
	}

	if schema.Kind == mart.KindDerived {
		var published bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM ledgerlens_publications WHERE table_name = $1)", name).Scan(&published)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if !published {
			return nil, fmt.Errorf("table %q: %w", name, provider.ErrNotFound)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		rec := make(map[string]any, len(vals))
		for i, c := range schema.Columns {
			v, err := decodeValue(vals[i])
			if err != nil {
				return nil, fmt.Errorf("decode %s.%s: %w", name, c.Name, err)
			}
			rec[c.Name] = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}

// encodeValue maps catalog values onto types pgx can COPY.
func encodeValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
	}
	return v
}

var errNumericSpecial = errors.New("NaN or infinite numeric")

// decodeValue maps pgx result values back onto the catalog's value types.
func decodeValue(v any) (any, error) {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil, nil
		}
		if x.NaN || x.InfinityModifier != pgtype.Finite {
			return nil, errNumericSpecial
		}
		i := x.Int
		if i == nil {
			i = new(big.Int)
		}
		return decimal.NewFromBigInt(i, x.Exp), nil
	case time.Time:
		return x.UTC(), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	}
	return v, nil
}
