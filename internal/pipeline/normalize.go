package pipeline

import (
	"strings"

	"sheetsync/internal"
)

// columnReplacer folds the Latin diacritics that show up in the source
// headers and rewrites separators into identifier-safe characters.
var columnReplacer = strings.NewReplacer(
	" ", "_",
	"ç", "c",
	"ã", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"â", "a",
	"ê", "e",
	"î", "i",
	"ô", "o",
	"û", "u",
	"à", "a",
	"-", "_",
	"(", "",
	")", "",
	"/", "_",
)

// NormalizeColumn maps a raw header to its canonical column name. It is a
// total function: any input yields some name, and normalizing an already
// canonical name changes nothing. Two distinct headers may collide; the
// later column wins when records are built.
func NormalizeColumn(header string) string {
	return columnReplacer.Replace(strings.ToLower(strings.TrimSpace(header)))
}

// BuildRecords re-keys a raw table by canonical column names. Empty and
// missing cells become nil. Ragged rows are tolerated: cells beyond the
// header width are dropped, short rows leave trailing columns nil.
func BuildRecords(table internal.RawTable) internal.RecordSet {
	canonical := make([]string, len(table.Headers))
	seen := map[string]bool{}
	columns := make([]string, 0, len(table.Headers))
	for i, h := range table.Headers {
		canonical[i] = NormalizeColumn(h)
		if !seen[canonical[i]] {
			seen[canonical[i]] = true
			columns = append(columns, canonical[i])
		}
	}

	records := make([]internal.Record, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec := internal.Record{}
		for _, col := range columns {
			rec[col] = nil
		}
		for i, col := range canonical {
			if i >= len(row) {
				continue
			}
			if row[i] == "" {
				rec[col] = nil
				continue
			}
			rec[col] = row[i]
		}
		records = append(records, rec)
	}

	return internal.RecordSet{Columns: columns, Records: records}
}
