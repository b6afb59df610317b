package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sheetsync/internal"
	"sheetsync/internal/config"
	"sheetsync/internal/storage"
)

// RowSource yields one document's raw table, or nil when the document has
// no usable data.
type RowSource interface {
	Fetch(ctx context.Context, docID string) *internal.RawTable
}

// RecordSink writes a record collection to the destination and reports
// how many records it accepted.
type RecordSink interface {
	Write(ctx context.Context, rs internal.RecordSet) (int, error)
}

// RunLog persists per-document outcomes. A nil RunLog disables recording.
type RunLog interface {
	Record(run internal.RunRecord) error
}

// Runner drives the sync: fetch, normalize, coerce and write each
// document in sequence. Failures are isolated per document; a write
// failure gets one reconnect-and-full-retry before the document is
// abandoned.
type Runner struct {
	cfg       config.Config
	source    RowSource
	sink      RecordSink
	reconnect func() error
	ledger    RunLog
}

func NewRunner(cfg config.Config, source RowSource, sink RecordSink, reconnect func() error, ledger RunLog) *Runner {
	return &Runner{cfg: cfg, source: source, sink: sink, reconnect: reconnect, ledger: ledger}
}

type Summary struct {
	Documents int
	Synced    int
	NoData    int
	Failed    int
	Rows      int
}

// Run processes the given document ids in order and returns per-run
// counts. It never returns an error: every failure mode is contained at
// the document level and reflected in the summary and the ledger.
func (r *Runner) Run(ctx context.Context, docIDs []string) Summary {
	summary := Summary{Documents: len(docIDs)}

	for _, docID := range docIDs {
		slog.Info("processing document", "document_id", docID)
		start := time.Now()

		table := r.source.Fetch(ctx, docID)
		if table == nil {
			summary.NoData++
			r.record(docID, internal.RunStatusNoData, 0, 0, "", start)
			continue
		}

		rs := BuildRecords(*table)
		Coerce(rs, r.cfg.MonetaryColumns, r.cfg.DateColumns)

		written, err := r.writeWithRecovery(ctx, docID, rs)
		if err != nil {
			slog.Error("document abandoned", "document_id", docID, "error", err)
			summary.Failed++
			r.record(docID, internal.RunStatusFailed, len(rs.Records), 0, err.Error(), start)
			continue
		}

		summary.Synced++
		summary.Rows += written
		slog.Info("document synced", "document_id", docID, "fetched", len(rs.Records), "written", written)
		r.record(docID, internal.RunStatusSynced, len(rs.Records), written, "", start)
	}

	slog.Info("run finished",
		"documents", summary.Documents,
		"synced", summary.Synced,
		"no_data", summary.NoData,
		"failed", summary.Failed,
		"rows", summary.Rows,
	)
	return summary
}

// writeWithRecovery retries a failed document write exactly once, on a
// fresh connection. The writer already handles per-batch connection
// retries; this is the outer escalation for everything it gives up on.
func (r *Runner) writeWithRecovery(ctx context.Context, docID string, rs internal.RecordSet) (int, error) {
	written, err := r.sink.Write(ctx, rs)
	if err == nil {
		return written, nil
	}
	if errors.Is(err, storage.ErrSchemaMismatch) {
		// Retrying a data-shape failure cannot change the outcome.
		return written, err
	}

	slog.Warn("write failed, reconnecting for one full retry", "document_id", docID, "error", err)
	if r.reconnect != nil {
		if rcErr := r.reconnect(); rcErr != nil {
			return 0, rcErr
		}
		slog.Info("database reconnected", "document_id", docID)
	}

	return r.sink.Write(ctx, rs)
}

func (r *Runner) record(docID, status string, fetched, written int, errMsg string, start time.Time) {
	if r.ledger == nil {
		return
	}
	run := internal.RunRecord{
		TraceID:     uuid.NewString(),
		DocumentID:  docID,
		Status:      status,
		RowsFetched: fetched,
		RowsWritten: written,
		Error:       errMsg,
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if err := r.ledger.Record(run); err != nil {
		slog.Warn("ledger write failed", "document_id", docID, "error", err)
	}
}
