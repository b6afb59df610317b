package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	CredentialsFile string
	FolderID        string
	SheetIDs        []string

	TableName string
	KeyColumn string
	CellRange string
	BatchSize int

	MonetaryColumns []string
	DateColumns     []string

	LedgerPath string
	ExportDir  string

	WatchIntervalSec int

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", filepath.Join(cwd, "service-account.json")),
		FolderID:        getEnv("DRIVE_FOLDER_ID", ""),
		SheetIDs:        getEnvList("SHEET_IDS", nil),

		TableName: getEnv("TABLE_NAME", "transacoes"),
		KeyColumn: getEnv("KEY_COLUMN", "codigo_da_transacao"),
		CellRange: getEnv("CELL_RANGE", "A1:ZZ"),
		BatchSize: getEnvInt("BATCH_SIZE", 50),

		MonetaryColumns: getEnvList("MONETARY_COLUMNS", []string{"valor", "preco", "taxa"}),
		DateColumns:     getEnvList("DATE_COLUMNS", []string{"data", "data_criacao", "data_atualizacao"}),

		LedgerPath: getEnv("LEDGER_PATH", filepath.Join(cwd, "data", "sync.db")),
		ExportDir:  getEnv("EXPORT_DIR", filepath.Join(cwd, "out")),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 900),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
