// Package postgres implements the analytical Postgres store for ledgerlens.
package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
)

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS ledgerlens_runs (
    run_id               TEXT PRIMARY KEY,
    status               TEXT NOT NULL,
    evaluated_at         TIMESTAMPTZ NOT NULL,
    churn_threshold_days INTEGER NOT NULL,
    components           JSONB,
    error                TEXT,
    started_at           TIMESTAMPTZ NOT NULL,
    finished_at          TIMESTAMPTZ,
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledgerlens_runs_started_at ON ledgerlens_runs (started_at);

CREATE TABLE IF NOT EXISTS ledgerlens_publications (
    table_name   TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL,
    row_count    INTEGER NOT NULL,
    published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ledgerlens_locks (
    lock_key   TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// schemaDDL returns the ledger tables plus one table per catalog entry.
func schemaDDL() string {
	var b strings.Builder
	b.WriteString(ledgerDDL)
	for _, kind := range []mart.Kind{mart.KindSource, mart.KindDerived} {
		for _, name := range mart.Names(kind) {
			s, _ := mart.Lookup(name)
			b.WriteString(tableDDL(s))
		}
	}
	return b.String()
}

func tableDDL(s mart.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nCREATE TABLE IF NOT EXISTS %s (\n", pgx.Identifier{s.Name}.Sanitize())
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = fmt.Sprintf("    %s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)
	}
	b.WriteString(strings.Join(cols, ",\n"))
	// Source tables hold loader output as-is, duplicates included.
	if s.Kind == mart.KindSource {
		b.WriteString("\n);\n")
		return b.String()
	}
	keys := make([]string, len(s.Key))
	for i, k := range s.Key {
		keys[i] = pgx.Identifier{k}.Sanitize()
	}
	fmt.Fprintf(&b, ",\n    PRIMARY KEY (%s)\n);\n", strings.Join(keys, ", "))
	return b.String()
}
