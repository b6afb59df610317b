package internal

import "time"

const (
	MimeGoogleSheet   = "application/vnd.google-apps.spreadsheet"
	MimeExcelWorkbook = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SourceDocument is one spreadsheet in the Drive folder, either a native
// Google Sheet or an imported xlsx workbook.
type SourceDocument struct {
	ID          string
	Name        string
	MimeType    string
	CreatedTime time.Time
}

func (d SourceDocument) IsNativeSheet() bool {
	return d.MimeType == MimeGoogleSheet
}

// RawTable is one sheet's content as returned by the values API: a header
// row plus data rows, everything still a string. Rows may be ragged.
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// Record maps canonical column names to typed values: string, float64,
// time.Time or nil for absent/empty cells.
type Record map[string]any

// RecordSet is an ordered record collection. Columns keeps the canonical
// column order from the source header row.
type RecordSet struct {
	Columns []string
	Records []Record
}

// RunRecord is one document's outcome within a sync run, persisted in the
// local ledger.
type RunRecord struct {
	TraceID     string
	DocumentID  string
	Status      string
	RowsFetched int
	RowsWritten int
	Error       string
	DurationMs  int64
	CreatedAt   string
}

const (
	RunStatusSynced  = "synced"
	RunStatusNoData  = "no_data"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
)
