// Package main copies every task library from one record store to another.
//
// The source is configured with the usual server flags and environment; the
// destination with the --to-* flags. Versions, share digests and timestamps
// are carried over unchanged, so clients and share links keep working.
//
// Usage:
//
//	go run ./cmd/migrate --storage-driver sqlite --to-driver aztables \
//	    --to-azure-tables-connection-string "$CONN"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/di/providers"
	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/logger"
)

func main() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	cfgFlags := config.BindFlags(fs)
	toDriver := fs.String("to-driver", "", "Destination store: sqlite, badger or aztables (required)")
	toDataPath := fs.String("to-data-path", "", "Destination data directory for sqlite or badger")
	toAzureConn := fs.String("to-azure-tables-connection-string", "", "Destination Azure Tables connection string")
	toAzureTable := fs.String("to-azure-tables-table", "tasklibraries", "Destination Azure Tables table name")
	dryRun := fs.Bool("dry-run", false, "Count records without writing")
	_ = fs.Parse(os.Args[1:])

	cfg, err := cfgFlags.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dst := config.StorageConfig{
		Driver:                *toDriver,
		DataPath:              *toDataPath,
		AzureConnectionString: *toAzureConn,
		AzureTable:            *toAzureTable,
	}
	if dst.Driver == "" {
		log.Fatal("--to-driver is required")
	}
	if dst.Driver == cfg.Storage.Driver && dst.DataPath == cfg.Storage.DataPath &&
		dst.AzureConnectionString == cfg.Storage.AzureConnectionString && dst.AzureTable == cfg.Storage.AzureTable {
		log.Fatal("source and destination are the same store")
	}

	lg := logger.New(logger.Config{Level: logger.ParseLevel(cfg.Logger.Level), Environment: cfg.App.Environment})
	ctx := context.Background()

	src, err := providers.OpenStore(ctx, cfg.Storage, lg)
	if err != nil {
		log.Fatalf("Failed to open source store: %v", err)
	}
	defer src.Close()

	out, err := providers.OpenStore(ctx, dst, lg)
	if err != nil {
		log.Fatalf("Failed to open destination store: %v", err)
	}
	defer out.Close()

	fmt.Printf("Migrating %s -> %s\n", cfg.Storage.Driver, dst.Driver)

	copied, shared := 0, 0
	err = src.Scan(ctx, func(rec *domain.TaskLibrary) error {
		if rec.Shared {
			shared++
		}
		copied++
		if *dryRun {
			return nil
		}
		if _, err := out.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("copy %s: %w", rec.Key(), err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Migration failed after %d records: %v", copied, err)
	}

	verb := "Copied"
	if *dryRun {
		verb = "Would copy"
	}
	fmt.Printf("%s %d libraries (%d shared)\n", verb, copied, shared)
}
