package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExportTableToXLSX(t *testing.T) {
	columns := []string{"id", "codigo_da_transacao", "data_criacao", "valor"}
	rows := [][]any{
		{int64(1), "tx-1", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), 1234.56},
		{int64(2), "tx-2", nil, nil},
	}

	out := filepath.Join(t.TempDir(), "transacoes.xlsx")
	if err := ExportTableToXLSX(columns, rows, out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}
}
