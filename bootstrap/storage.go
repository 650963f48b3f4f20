package bootstrap

import (
	"fmt"

	"vigil/config"
	"vigil/storage"

	"go.uber.org/zap"
)

// InitSQLite opens the event store and ensures its schema.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, *storage.EventStorage, error) {
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event store: %w", err)
	}

	eventStorage, err := storage.NewEventStorage(sqlite, sugar)
	if err != nil {
		sqlite.Close()
		return nil, nil, fmt.Errorf("failed to initialize event storage: %w", err)
	}

	return sqlite, eventStorage, nil
}
