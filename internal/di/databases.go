package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/famledger/internal/config"
	"github.com/aristath/famledger/internal/database"
)

// InitializeDatabases opens the SQLite record database when that backend is
// selected. The JSON backend needs no database.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	if cfg.StorageBackend != config.BackendSQLite {
		return container, nil
	}

	recordsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "famledger.db"),
		Profile: database.ProfileStandard,
		Driver:  cfg.SQLiteDriver,
		Name:    "records",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize records database: %w", err)
	}
	if err := recordsDB.Migrate(); err != nil {
		recordsDB.Close()
		return nil, fmt.Errorf("failed to migrate records database: %w", err)
	}
	container.RecordsDB = recordsDB

	log.Info().Str("driver", recordsDB.Driver()).Str("path", recordsDB.Path()).Msg("Records database initialized")
	return container, nil
}
