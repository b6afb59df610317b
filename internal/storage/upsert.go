package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sheetsync/internal"
	"sheetsync/internal/retry"
)

const DefaultBatchSize = 50

// ErrSchemaMismatch marks data-shape failures: the key column is absent
// from the source or the destination. Retrying cannot change the outcome,
// so the caller should skip the document instead of reconnecting.
var ErrSchemaMismatch = errors.New("schema mismatch")

// database is the slice of DB the writer needs; tests substitute a fake
// to inject connection faults.
type database interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
	ExecBatch(ctx context.Context, query string, args []any) error
	Reconnect() error
}

// Writer performs the idempotent batched upsert. Records without a usable
// key are dropped, columns the destination does not have are projected
// away, and each batch commits in its own transaction. A connection-level
// failure mid-batch reconnects and retries that same batch; any other
// failure aborts the write immediately.
type Writer struct {
	db        database
	Table     string
	KeyColumn string
	BatchSize int
	Retry     retry.Policy
}

func NewWriter(db *DB, table, keyColumn string, batchSize int, policy retry.Policy) *Writer {
	return &Writer{db: db, Table: table, KeyColumn: keyColumn, BatchSize: batchSize, Retry: policy}
}

func (w *Writer) Write(ctx context.Context, rs internal.RecordSet) (int, error) {
	if err := validIdent(w.Table); err != nil {
		return 0, err
	}
	if !contains(rs.Columns, w.KeyColumn) {
		return 0, fmt.Errorf("key column %s not found in source columns: %w", w.KeyColumn, ErrSchemaMismatch)
	}

	keyed := filterKeyed(rs.Records, w.KeyColumn)
	if dropped := len(rs.Records) - len(keyed); dropped > 0 {
		slog.Info("records without upsert key dropped", "dropped", dropped, "remaining", len(keyed))
	}
	if len(keyed) == 0 {
		return 0, nil
	}

	live, err := w.db.TableColumns(ctx, w.Table)
	if err != nil {
		return 0, fmt.Errorf("read destination columns: %w", err)
	}
	columns := intersect(rs.Columns, live)
	if !contains(columns, w.KeyColumn) {
		return 0, fmt.Errorf("key column %s not found in table %s: %w", w.KeyColumn, w.Table, ErrSchemaMismatch)
	}

	written := 0
	total := len(keyed)
	for _, batch := range Batches(keyed, w.batchSize()) {
		query := BuildUpsert(w.Table, columns, w.KeyColumn, len(batch))
		args := flattenArgs(batch, columns)

		if err := w.execWithReconnect(ctx, query, args); err != nil {
			return written, err
		}

		written += len(batch)
		slog.Info("batch committed", "table", w.Table, "processed", written, "total", total)
	}

	return written, nil
}

// execWithReconnect retries one batch on connection errors only, with a
// fresh connection and a fixed wait between attempts. Data errors (bad
// types, constraint violations) propagate on the first try: the batch
// would fail the same way again.
func (w *Writer) execWithReconnect(ctx context.Context, query string, args []any) error {
	attempts := w.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.db.ExecBatch(ctx, query, args)
		if err == nil {
			return nil
		}
		if !IsConnErr(err) || attempt == attempts {
			return err
		}

		slog.Warn("connection error during batch", "attempt", attempt, "max_attempts", attempts, "error", err)
		if rcErr := w.db.Reconnect(); rcErr != nil {
			return fmt.Errorf("reconnect: %w", rcErr)
		}
		w.Retry.Wait(attempt)
	}
	return err
}

// BuildUpsert renders the multi-row insert with the conflict clause that
// overwrites every non-key column (last write wins).
func BuildUpsert(table string, columns []string, keyColumn string, rowCount int) string {
	placeholders := make([]string, 0, rowCount)
	n := 1
	for i := 0; i < rowCount; i++ {
		row := make([]string, 0, len(columns))
		for range columns {
			row = append(row, fmt.Sprintf("$%d", n))
			n++
		}
		placeholders = append(placeholders, "("+strings.Join(row, ", ")+")")
	}

	updates := make([]string, 0, len(columns)-1)
	for _, col := range columns {
		if col == keyColumn {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	conflict := fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", keyColumn)
	if len(updates) > 0 {
		conflict = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", keyColumn, strings.Join(updates, ", "))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "), conflict)
}

// Batches splits records into fixed-size chunks preserving order.
func Batches(records []internal.Record, size int) [][]internal.Record {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]internal.Record
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func filterKeyed(records []internal.Record, keyColumn string) []internal.Record {
	out := make([]internal.Record, 0, len(records))
	for _, rec := range records {
		switch v := rec[keyColumn].(type) {
		case nil:
			continue
		case string:
			// A whitespace-only key counts as missing.
			if strings.TrimSpace(v) == "" {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

func intersect(columns, live []string) []string {
	liveSet := make(map[string]bool, len(live))
	for _, c := range live {
		liveSet[c] = true
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if liveSet[c] {
			out = append(out, c)
		}
	}
	return out
}

func flattenArgs(records []internal.Record, columns []string) []any {
	args := make([]any, 0, len(records)*len(columns))
	for _, rec := range records {
		for _, col := range columns {
			args = append(args, rec[col])
		}
	}
	return args
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func (w *Writer) batchSize() int {
	if w.BatchSize < 1 {
		return DefaultBatchSize
	}
	return w.BatchSize
}
