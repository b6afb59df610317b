package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sheetsync/internal"
	"sheetsync/internal/config"
	"sheetsync/internal/storage"
)

type fakeSource struct {
	tables map[string]*internal.RawTable
}

func (f fakeSource) Fetch(_ context.Context, docID string) *internal.RawTable {
	return f.tables[docID]
}

type fakeSink struct {
	calls    int
	failures int
	written  []int
}

func (f *fakeSink) Write(_ context.Context, rs internal.RecordSet) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("write boom")
	}
	f.written = append(f.written, len(rs.Records))
	return len(rs.Records), nil
}

func sampleTable() *internal.RawTable {
	return &internal.RawTable{
		Headers: []string{"Código da Transação", "Valor"},
		Rows:    [][]string{{"tx-1", "10,00"}, {"tx-2", "20,00"}},
	}
}

func testConfig() config.Config {
	cfg, _ := config.Load()
	return cfg
}

func TestRunnerSkipsDocumentsWithoutData(t *testing.T) {
	source := fakeSource{tables: map[string]*internal.RawTable{"doc-2": sampleTable()}}
	sink := &fakeSink{}

	summary := NewRunner(testConfig(), source, sink, nil, nil).Run(context.Background(), []string{"doc-1", "doc-2"})

	if summary.NoData != 1 || summary.Synced != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if sink.calls != 1 {
		t.Fatalf("sink called %d times", sink.calls)
	}
}

func TestRunnerRetriesWriteOnceAfterReconnect(t *testing.T) {
	source := fakeSource{tables: map[string]*internal.RawTable{"doc-1": sampleTable()}}
	sink := &fakeSink{failures: 1}
	reconnects := 0

	summary := NewRunner(testConfig(), source, sink, func() error {
		reconnects++
		return nil
	}, nil).Run(context.Background(), []string{"doc-1"})

	if reconnects != 1 {
		t.Fatalf("reconnects: got %d want 1", reconnects)
	}
	if sink.calls != 2 {
		t.Fatalf("sink calls: got %d want 2", sink.calls)
	}
	if summary.Synced != 1 || summary.Rows != 2 {
		t.Fatalf("summary: %+v", summary)
	}
}

func TestRunnerAbandonsDocumentAfterSecondFailure(t *testing.T) {
	source := fakeSource{tables: map[string]*internal.RawTable{
		"doc-1": sampleTable(),
		"doc-2": sampleTable(),
	}}
	sink := &fakeSink{failures: 2}
	reconnects := 0

	summary := NewRunner(testConfig(), source, sink, func() error {
		reconnects++
		return nil
	}, nil).Run(context.Background(), []string{"doc-1", "doc-2"})

	if reconnects != 1 {
		t.Fatalf("reconnects: got %d want 1", reconnects)
	}
	if summary.Failed != 1 {
		t.Fatalf("failed: got %d want 1", summary.Failed)
	}
	if summary.Synced != 1 {
		t.Fatalf("second document should still sync: %+v", summary)
	}
}

type mismatchSink struct {
	calls int
}

func (m *mismatchSink) Write(context.Context, internal.RecordSet) (int, error) {
	m.calls++
	return 0, fmt.Errorf("key column codigo_da_transacao not found in table transacoes: %w", storage.ErrSchemaMismatch)
}

func TestRunnerDoesNotRetrySchemaMismatch(t *testing.T) {
	source := fakeSource{tables: map[string]*internal.RawTable{"doc-1": sampleTable()}}
	sink := &mismatchSink{}
	reconnects := 0

	summary := NewRunner(testConfig(), source, sink, func() error {
		reconnects++
		return nil
	}, nil).Run(context.Background(), []string{"doc-1"})

	if reconnects != 0 {
		t.Fatalf("schema mismatch must not reconnect, got %d", reconnects)
	}
	if sink.calls != 1 {
		t.Fatalf("sink calls: got %d want 1", sink.calls)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary: %+v", summary)
	}
}

type memoryLog struct {
	runs []internal.RunRecord
}

func (m *memoryLog) Record(run internal.RunRecord) error {
	m.runs = append(m.runs, run)
	return nil
}

func TestRunnerRecordsLedgerEntries(t *testing.T) {
	source := fakeSource{tables: map[string]*internal.RawTable{"doc-2": sampleTable()}}
	sink := &fakeSink{}
	log := &memoryLog{}

	NewRunner(testConfig(), source, sink, nil, log).Run(context.Background(), []string{"doc-1", "doc-2"})

	if len(log.runs) != 2 {
		t.Fatalf("ledger entries: got %d want 2", len(log.runs))
	}
	if log.runs[0].Status != internal.RunStatusNoData {
		t.Fatalf("first status: %s", log.runs[0].Status)
	}
	if log.runs[1].Status != internal.RunStatusSynced || log.runs[1].RowsWritten != 2 {
		t.Fatalf("second run: %+v", log.runs[1])
	}
	if log.runs[1].TraceID == "" {
		t.Fatalf("trace id missing")
	}
}
