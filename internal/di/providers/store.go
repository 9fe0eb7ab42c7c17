package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/tasksync-server/internal/config"
	"github.com/listenupapp/tasksync-server/internal/logger"
	"github.com/listenupapp/tasksync-server/internal/store"
	"github.com/listenupapp/tasksync-server/internal/store/aztables"
	"github.com/listenupapp/tasksync-server/internal/store/badgerstore"
	"github.com/listenupapp/tasksync-server/internal/store/sqlite"
)

// SQLiteFile is the database file name inside the data path.
const SQLiteFile = "tasksync.db"

// BadgerDir is the badger directory name inside the data path.
const BadgerDir = "badger"

// StoreHandle wraps the record store with Shutdownable.
type StoreHandle struct {
	store.RecordStore
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the record store selected by the storage driver.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, err := OpenStore(context.Background(), cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{RecordStore: st}, nil
}

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (store.RecordStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite, config.DriverBadger:
		if err := os.MkdirAll(cfg.DataPath, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(filepath.Join(cfg.DataPath, SQLiteFile), log.Logger)
	case config.DriverBadger:
		return badgerstore.Open(filepath.Join(cfg.DataPath, BadgerDir), log.Logger)
	case config.DriverAzTables:
		ctx, cancel := context.WithTimeout(ctx, startupPingTimeout)
		defer cancel()
		return aztables.Open(ctx, cfg.AzureConnectionString, cfg.AzureTable, log.Logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
