package backend

import (
	"github.com/microsoft/durabletask-go/backend"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
)

// NewBackend creates the durable orchestration backend used for cascade retries
func NewBackend(cfg *config.BackendConfig) (backend.Backend, error) {
	return NewSQLiteBackend(cfg, backend.DefaultLogger())
}
