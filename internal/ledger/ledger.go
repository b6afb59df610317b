// Package ledger keeps a local sqlite history of sync runs, one row per
// document per run, plus a small metadata table for bookkeeping keys.
package ledger

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sheetsync/internal"
)

type Ledger struct {
	conn *sql.DB
}

func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	l := &Ledger{conn: conn}
	if err := l.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) Close() error {
	return l.conn.Close()
}

func (l *Ledger) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  documentId TEXT NOT NULL,
  status TEXT NOT NULL,
  rowsFetched INTEGER NOT NULL DEFAULT 0,
  rowsWritten INTEGER NOT NULL DEFAULT 0,
  errorMsg TEXT,
  durationMs INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_documentId ON runs(documentId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := l.conn.Exec(schema)
	return err
}

func (l *Ledger) Record(run internal.RunRecord) error {
	_, err := l.conn.Exec(`
INSERT INTO runs (traceId, documentId, status, rowsFetched, rowsWritten, errorMsg, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.DocumentID, run.Status, run.RowsFetched, run.RowsWritten, run.Error, run.DurationMs)
	if err != nil {
		return err
	}
	return l.SetMetadata("last_sync", time.Now().UTC().Format(time.RFC3339))
}

func (l *Ledger) RecentRuns(limit int) ([]internal.RunRecord, error) {
	rows, err := l.conn.Query(`
SELECT traceId, documentId, status, rowsFetched, rowsWritten, COALESCE(errorMsg, ''), durationMs, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		var run internal.RunRecord
		if err := rows.Scan(&run.TraceID, &run.DocumentID, &run.Status, &run.RowsFetched, &run.RowsWritten, &run.Error, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (l *Ledger) SetMetadata(key, value string) error {
	_, err := l.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (l *Ledger) GetMetadata(key string) (*string, error) {
	var value string
	err := l.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
