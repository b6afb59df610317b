package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sheetsync/internal/config"
	"sheetsync/internal/ledger"
	"sheetsync/internal/logging"
	"sheetsync/internal/pipeline"
	"sheetsync/internal/retry"
	"sheetsync/internal/sheets"
	"sheetsync/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provision := fs.Bool("provision", false, "drop and recreate the destination table first")
		discover := fs.Bool("discover", false, "resolve the document list from the Drive folder")
		_ = fs.Parse(os.Args[2:])
		if err := runSync(ctx, cfg, *provision, *discover); err != nil {
			slog.Error("run failed", "error", err)
		}
	case "provision":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		keep := fs.Bool("keep", false, "verify the table exists instead of recreating it")
		_ = fs.Parse(os.Args[2:])
		if err := runProvision(ctx, cfg, *keep); err != nil {
			slog.Error("provisioning failed", "error", err)
			return
		}
		fmt.Printf("table %s ready\n", cfg.TableName)
	case "discover":
		if err := runDiscover(ctx, cfg); err != nil {
			slog.Error("discovery failed", "error", err)
		}
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if err := runExport(ctx, cfg, *out); err != nil {
			slog.Error("export failed", "error", err)
		}
	case "runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max ledger entries")
		_ = fs.Parse(os.Args[2:])
		if err := runLedger(cfg, *limit); err != nil {
			slog.Error("reading ledger failed", "error", err)
		}
	case "watch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		discover := fs.Bool("discover", false, "resolve the document list from the Drive folder")
		_ = fs.Parse(os.Args[2:])
		runWatch(ctx, cfg, *discover)
	default:
		usage()
		os.Exit(1)
	}
}

func runSync(ctx context.Context, cfg config.Config, provision, discover bool) error {
	if err := cfg.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
		return err
	}

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
		slog.Info("database connection closed")
	}()
	slog.Info("database connection established")

	if provision {
		if err := db.Provision(ctx, cfg.TableName, false); err != nil {
			return err
		}
		slog.Info("destination table recreated", "table", cfg.TableName)
	}

	svcs, err := sheets.NewServices(ctx, cfg.CredentialsFile)
	if err != nil {
		return err
	}

	docIDs := cfg.SheetIDs
	if discover {
		if err := cfg.Require("DRIVE_FOLDER_ID", cfg.FolderID); err != nil {
			return err
		}
		discovery := sheets.NewDiscovery(svcs.Drive, cfg.FolderID)
		_ = discovery.VerifyFolder(ctx)
		docIDs = sheets.DocumentIDs(discovery.ListCanonical(ctx))
	}
	if len(docIDs) == 0 {
		slog.Warn("no documents to process")
		return nil
	}

	var runLog pipeline.RunLog
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		slog.Warn("run ledger unavailable", "path", cfg.LedgerPath, "error", err)
	} else {
		defer led.Close()
		runLog = led
	}

	fetcher := sheets.NewFetcher(svcs.Sheets, cfg.CellRange, retry.Linear(3, 5*time.Second))
	writer := storage.NewWriter(db, cfg.TableName, cfg.KeyColumn, cfg.BatchSize, retry.Fixed(3, 5*time.Second))
	runner := pipeline.NewRunner(cfg, fetcher, writer, db.Reconnect, runLog)

	runner.Run(ctx, docIDs)
	return nil
}

func runProvision(ctx context.Context, cfg config.Config, keep bool) error {
	if err := cfg.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
		return err
	}
	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Provision(ctx, cfg.TableName, keep)
}

func runDiscover(ctx context.Context, cfg config.Config) error {
	if err := cfg.Require("DRIVE_FOLDER_ID", cfg.FolderID); err != nil {
		return err
	}
	svcs, err := sheets.NewServices(ctx, cfg.CredentialsFile)
	if err != nil {
		return err
	}

	discovery := sheets.NewDiscovery(svcs.Drive, cfg.FolderID)
	_ = discovery.VerifyFolder(ctx)
	for _, doc := range discovery.ListCanonical(ctx) {
		kind := "workbook"
		if doc.IsNativeSheet() {
			kind = "sheet"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", doc.ID, kind, doc.CreatedTime.Format(time.RFC3339), doc.Name)
	}
	return nil
}

func runExport(ctx context.Context, cfg config.Config, out string) error {
	if err := cfg.Require("DATABASE_URL", cfg.DatabaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		out = filepath.Join(cfg.ExportDir, cfg.TableName+".xlsx")
	}

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	columns, rows, err := db.DumpTable(ctx, cfg.TableName)
	if err != nil {
		return err
	}
	if err := pipeline.ExportTableToXLSX(columns, rows, out); err != nil {
		return err
	}
	fmt.Printf("exported %d rows to %s\n", len(rows), out)
	return nil
}

func runLedger(cfg config.Config, limit int) error {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	runs, err := led.RecentRuns(limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s\t%s\t%s\tfetched=%d written=%d %s\n",
			run.CreatedAt, run.DocumentID, run.Status, run.RowsFetched, run.RowsWritten, run.Error)
	}
	return nil
}

func runWatch(ctx context.Context, cfg config.Config, discover bool) {
	interval := time.Duration(cfg.WatchIntervalSec) * time.Second
	slog.Info("watch started", "interval", interval)

	for {
		if err := runSync(ctx, cfg, false, discover); err != nil {
			slog.Error("watch cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return
		case <-time.After(interval):
		}
	}
}

func usage() {
	fmt.Println("usage: sheetsync <command>")
	fmt.Println("commands:")
	fmt.Println("  sync [--provision] [--discover]")
	fmt.Println("  provision [--keep]")
	fmt.Println("  discover")
	fmt.Println("  export [--out=./out/table.xlsx]")
	fmt.Println("  runs [--limit=20]")
	fmt.Println("  watch [--discover]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
