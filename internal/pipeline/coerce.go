package pipeline

import (
	"strconv"
	"strings"
	"time"

	"sheetsync/internal"
)

const (
	dateTimeLayout = "02/01/2006 15:04:05"
	dateOnlyLayout = "02/01/2006"
)

// Coerce converts the configured monetary and date columns in place.
// It never fails: a cell that cannot be parsed becomes nil and the row
// proceeds with its other values.
func Coerce(rs internal.RecordSet, monetaryColumns, dateColumns []string) {
	for _, col := range monetaryColumns {
		if !hasColumn(rs, col) {
			continue
		}
		coerceMonetary(rs.Records, col)
	}
	for _, col := range dateColumns {
		if !hasColumn(rs, col) {
			continue
		}
		coerceDates(rs.Records, col)
	}
}

func coerceMonetary(records []internal.Record, col string) {
	for _, rec := range records {
		raw, ok := rec[col].(string)
		if !ok {
			continue
		}
		if v, ok := ParseMonetary(raw); ok {
			rec[col] = v
		} else {
			rec[col] = nil
		}
	}
}

// ParseMonetary reads a Brazilian-formatted amount: currency marker and
// thousands dots stripped, decimal comma converted to a point.
func ParseMonetary(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, "R$", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// coerceDates parses a date column with the day/month/year-with-time
// layout. The date-only fallback is column-wide: it runs only when every
// value in the column failed the primary layout. A column where some
// values parse keeps those and nils the rest; the fallback is not tried
// per value.
func coerceDates(records []internal.Record, col string) {
	raw := make([]string, len(records))
	hasValue := false
	for i, rec := range records {
		if s, ok := rec[col].(string); ok && strings.TrimSpace(s) != "" {
			raw[i] = strings.TrimSpace(s)
			hasValue = true
		}
		rec[col] = nil
	}
	if !hasValue {
		return
	}

	anyParsed := applyLayout(records, col, raw, dateTimeLayout)
	if !anyParsed {
		applyLayout(records, col, raw, dateOnlyLayout)
	}
}

func applyLayout(records []internal.Record, col string, raw []string, layout string) bool {
	parsed := false
	for i, rec := range records {
		if raw[i] == "" {
			rec[col] = nil
			continue
		}
		t, err := time.Parse(layout, raw[i])
		if err != nil {
			rec[col] = nil
			continue
		}
		rec[col] = t
		parsed = true
	}
	return parsed
}

func hasColumn(rs internal.RecordSet, col string) bool {
	for _, c := range rs.Columns {
		if c == col {
			return true
		}
	}
	return false
}
