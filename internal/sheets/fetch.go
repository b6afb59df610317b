package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/sheets/v4"

	"sheetsync/internal"
	"sheetsync/internal/retry"
)

// Fetcher reads one spreadsheet's cells as a raw string table. Failures
// are retried per the policy; exhaustion degrades to a nil table, never an
// error, so one unreachable document cannot abort the run.
type Fetcher struct {
	values    valuesGetter
	cellRange string
	policy    retry.Policy
}

type valuesGetter interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error)
}

type apiValues struct {
	svc *sheets.Service
}

func (a apiValues) Get(ctx context.Context, spreadsheetID, readRange string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func NewFetcher(svc *sheets.Service, cellRange string, policy retry.Policy) *Fetcher {
	return &Fetcher{values: apiValues{svc: svc}, cellRange: cellRange, policy: policy}
}

// Fetch returns the header row plus data rows for one document, or nil
// when the document is empty or could not be read after all attempts.
func (f *Fetcher) Fetch(ctx context.Context, docID string) *internal.RawTable {
	var values [][]any
	err := f.policy.Do(func(attempt int) error {
		got, err := f.values.Get(ctx, docID, f.cellRange)
		if err != nil {
			slog.Warn("sheet read attempt failed", "document_id", docID, "attempt", attempt, "error", err)
			return err
		}
		values = got
		return nil
	})
	if err != nil {
		slog.Error("sheet read failed after retries", "document_id", docID, "attempts", f.policy.MaxAttempts, "error", err)
		return nil
	}

	if len(values) == 0 {
		slog.Error("sheet is empty", "document_id", docID)
		return nil
	}

	table := &internal.RawTable{
		Headers: toStrings(values[0]),
		Rows:    make([][]string, 0, len(values)-1),
	}
	for _, row := range values[1:] {
		table.Rows = append(table.Rows, toStrings(row))
	}

	slog.Info("sheet data fetched", "document_id", docID, "rows", len(table.Rows), "columns", len(table.Headers))
	return table
}

func toStrings(row []any) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		if s, ok := cell.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprintf("%v", cell))
	}
	return out
}
