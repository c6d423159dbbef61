package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/microsoft/durabletask-go/backend"
	"github.com/microsoft/durabletask-go/backend/sqlite"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
)

// NewSQLiteBackend creates the orchestration history store. An empty
// SQLiteFile keeps history in memory, which tests use.
func NewSQLiteBackend(cfg *config.BackendConfig, logger backend.Logger) (backend.Backend, error) {
	if cfg.SQLiteFile != "" {
		dir := filepath.Dir(cfg.SQLiteFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	be := sqlite.NewSqliteBackend(sqlite.NewSqliteOptions(cfg.SQLiteFile), logger)
	if be == nil {
		return nil, fmt.Errorf("failed to create SQLite backend at %q", cfg.SQLiteFile)
	}

	return be, nil
}
