// Package storage is the Postgres side of the sync: connection lifecycle,
// provisioning, schema introspection and the batched upsert writer.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps a single Postgres connection. The sync is strictly sequential,
// so the pool is capped at one connection and Reconnect replaces it in
// place after a connection-level failure.
type DB struct {
	dsn  string
	conn *sql.DB
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{dsn: dsn, conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// Reconnect closes the current connection and opens a fresh one against
// the same DSN.
func (d *DB) Reconnect() error {
	_ = d.conn.Close()

	conn, err := sql.Open("pgx", d.dsn)
	if err != nil {
		return err
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("reconnect: %w", err)
	}

	d.conn = conn
	return nil
}

// Provision drops and recreates the destination table. Destructive on
// purpose: the sync re-imports every document from scratch. When keep is
// true the table is left alone and only checked for existence.
func (d *DB) Provision(ctx context.Context, table string, keep bool) error {
	if err := validIdent(table); err != nil {
		return err
	}

	if keep {
		var exists bool
		err := d.conn.QueryRowContext(ctx, `
SELECT EXISTS (
  SELECT 1 FROM information_schema.tables WHERE table_name = $1
)`, table).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("destination table %s does not exist", table)
		}
		return nil
	}

	if _, err := d.conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE %s (
  id SERIAL PRIMARY KEY,
  codigo_da_transacao VARCHAR(255) UNIQUE,
  data_criacao TIMESTAMP,
  valor DECIMAL(15, 2),
  status VARCHAR(100),
  descricao TEXT
)`, table)
	if _, err := d.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	return nil
}

// TableColumns returns the live column set of the destination table.
func (d *DB) TableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_name = $1
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ExecBatch runs one statement in its own transaction, so every committed
// batch survives a later failure.
func (d *DB) ExecBatch(ctx context.Context, query string, args []any) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// DumpTable reads the whole destination table for export.
func (d *DB) DumpTable(ctx context.Context, table string) ([]string, [][]any, error) {
	if err := validIdent(table); err != nil {
		return nil, nil, err
	}

	rows, err := d.conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %q", name)
	}
	return nil
}
