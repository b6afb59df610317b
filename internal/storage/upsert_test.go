package storage

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"sheetsync/internal"
	"sheetsync/internal/retry"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	live       []string
	execs      []execCall
	failAt     map[int]error
	reconnects int
}

func (f *fakeDB) TableColumns(context.Context, string) ([]string, error) {
	return f.live, nil
}

func (f *fakeDB) ExecBatch(_ context.Context, query string, args []any) error {
	call := len(f.execs)
	f.execs = append(f.execs, execCall{query: query, args: args})
	if err, ok := f.failAt[call]; ok {
		delete(f.failAt, call)
		return err
	}
	return nil
}

func (f *fakeDB) Reconnect() error {
	f.reconnects++
	return nil
}

func connErr() error {
	return &pgconn.PgError{Code: "08006", Message: "connection failure"}
}

func dataErr() error {
	return &pgconn.PgError{Code: "23514", Message: "check constraint violated"}
}

func noWaitPolicy() retry.Policy {
	p := retry.Fixed(3, 5*time.Second)
	p.Sleep = func(time.Duration) {}
	return p
}

func testWriter(db *fakeDB, batchSize int) *Writer {
	return &Writer{
		db:        db,
		Table:     "transacoes",
		KeyColumn: "codigo_da_transacao",
		BatchSize: batchSize,
		Retry:     noWaitPolicy(),
	}
}

func records(n int) internal.RecordSet {
	rs := internal.RecordSet{Columns: []string{"codigo_da_transacao", "valor"}}
	for i := 0; i < n; i++ {
		rs.Records = append(rs.Records, internal.Record{
			"codigo_da_transacao": "tx-" + strconv.Itoa(i),
			"valor":               float64(i),
		})
	}
	return rs
}

func TestWriteBatchesInOrder(t *testing.T) {
	db := &fakeDB{live: []string{"id", "codigo_da_transacao", "valor"}}
	w := testWriter(db, 50)

	written, err := w.Write(context.Background(), records(120))
	if err != nil {
		t.Fatal(err)
	}
	if written != 120 {
		t.Fatalf("written: got %d want 120", written)
	}
	if len(db.execs) != 3 {
		t.Fatalf("batches: got %d want 3", len(db.execs))
	}

	sizes := []int{50, 50, 20}
	for i, want := range sizes {
		if got := len(db.execs[i].args) / 2; got != want {
			t.Fatalf("batch %d size: got %d want %d", i, got, want)
		}
	}
	// First record of each batch preserves original order.
	if db.execs[0].args[0] != "tx-0" || db.execs[1].args[0] != "tx-50" || db.execs[2].args[0] != "tx-100" {
		t.Fatalf("order broken: %v %v %v", db.execs[0].args[0], db.execs[1].args[0], db.execs[2].args[0])
	}
}

func TestWriteDropsRecordsWithoutKey(t *testing.T) {
	db := &fakeDB{live: []string{"codigo_da_transacao", "valor"}}
	w := testWriter(db, 50)

	rs := internal.RecordSet{
		Columns: []string{"codigo_da_transacao", "valor"},
		Records: []internal.Record{
			{"codigo_da_transacao": "tx-1", "valor": 1.0},
			{"codigo_da_transacao": nil, "valor": 2.0},
			{"codigo_da_transacao": "", "valor": 3.0},
			{"codigo_da_transacao": "   ", "valor": 4.0},
			{"codigo_da_transacao": "tx-5", "valor": 5.0},
		},
	}

	written, err := w.Write(context.Background(), rs)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 {
		t.Fatalf("written: got %d want 2", written)
	}
	if len(db.execs) != 1 || len(db.execs[0].args) != 4 {
		t.Fatalf("execs: %+v", db.execs)
	}
}

func TestWriteProjectsToLiveColumns(t *testing.T) {
	db := &fakeDB{live: []string{"id", "codigo_da_transacao", "valor"}}
	w := testWriter(db, 50)

	rs := internal.RecordSet{
		Columns: []string{"codigo_da_transacao", "valor", "coluna_extra"},
		Records: []internal.Record{
			{"codigo_da_transacao": "tx-1", "valor": 1.0, "coluna_extra": "dropped"},
		},
	}

	if _, err := w.Write(context.Background(), rs); err != nil {
		t.Fatal(err)
	}

	query := db.execs[0].query
	if strings.Contains(query, "coluna_extra") {
		t.Fatalf("projected column leaked into statement: %s", query)
	}
	if len(db.execs[0].args) != 2 {
		t.Fatalf("args: %+v", db.execs[0].args)
	}
}

func TestWriteFailsWhenKeyMissingFromSource(t *testing.T) {
	db := &fakeDB{live: []string{"codigo_da_transacao"}}
	w := testWriter(db, 50)

	rs := internal.RecordSet{Columns: []string{"valor"}, Records: []internal.Record{{"valor": 1.0}}}
	if _, err := w.Write(context.Background(), rs); err == nil {
		t.Fatal("expected error for missing key column")
	}
	if len(db.execs) != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestWriteFailsWhenKeyMissingFromDestination(t *testing.T) {
	db := &fakeDB{live: []string{"id", "valor"}}
	w := testWriter(db, 50)

	if _, err := w.Write(context.Background(), records(1)); err == nil {
		t.Fatal("expected error when destination lacks key column")
	}
}

func TestWriteReconnectsAndRetriesSameBatch(t *testing.T) {
	db := &fakeDB{
		live:   []string{"codigo_da_transacao", "valor"},
		failAt: map[int]error{1: connErr()},
	}
	w := testWriter(db, 50)

	written, err := w.Write(context.Background(), records(120))
	if err != nil {
		t.Fatal(err)
	}
	if written != 120 {
		t.Fatalf("written: got %d want 120", written)
	}
	if db.reconnects != 1 {
		t.Fatalf("reconnects: got %d want 1", db.reconnects)
	}
	// Batch 2 executed twice, four statements total.
	if len(db.execs) != 4 {
		t.Fatalf("execs: got %d want 4", len(db.execs))
	}
	if db.execs[1].args[0] != "tx-50" || db.execs[2].args[0] != "tx-50" {
		t.Fatalf("retried batch differs: %v vs %v", db.execs[1].args[0], db.execs[2].args[0])
	}
	if db.execs[3].args[0] != "tx-100" {
		t.Fatalf("batch 3 should follow: %v", db.execs[3].args[0])
	}
}

func TestWritePropagatesConnErrorAfterThreeAttempts(t *testing.T) {
	db := &fakeDB{
		live:   []string{"codigo_da_transacao", "valor"},
		failAt: map[int]error{0: connErr(), 1: connErr(), 2: connErr()},
	}
	w := testWriter(db, 50)

	written, err := w.Write(context.Background(), records(10))
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if written != 0 {
		t.Fatalf("written: got %d want 0", written)
	}
	if db.reconnects != 2 {
		t.Fatalf("reconnects: got %d want 2", db.reconnects)
	}
}

func TestWriteDoesNotRetryDataErrors(t *testing.T) {
	db := &fakeDB{
		live:   []string{"codigo_da_transacao", "valor"},
		failAt: map[int]error{0: dataErr()},
	}
	w := testWriter(db, 50)

	if _, err := w.Write(context.Background(), records(10)); err == nil {
		t.Fatal("expected data error to propagate")
	}
	if db.reconnects != 0 {
		t.Fatalf("data errors must not reconnect, got %d", db.reconnects)
	}
	if len(db.execs) != 1 {
		t.Fatalf("data errors must not retry, got %d execs", len(db.execs))
	}
}

func TestBuildUpsertStatement(t *testing.T) {
	query := BuildUpsert("transacoes", []string{"codigo_da_transacao", "valor", "status"}, "codigo_da_transacao", 2)

	want := "INSERT INTO transacoes (codigo_da_transacao, valor, status) " +
		"VALUES ($1, $2, $3), ($4, $5, $6) " +
		"ON CONFLICT (codigo_da_transacao) DO UPDATE SET valor = EXCLUDED.valor, status = EXCLUDED.status"
	if query != want {
		t.Fatalf("got:\n%s\nwant:\n%s", query, want)
	}
}

func TestBuildUpsertKeyOnly(t *testing.T) {
	query := BuildUpsert("transacoes", []string{"codigo_da_transacao"}, "codigo_da_transacao", 1)
	if !strings.HasSuffix(query, "ON CONFLICT (codigo_da_transacao) DO NOTHING") {
		t.Fatalf("got %s", query)
	}
}
