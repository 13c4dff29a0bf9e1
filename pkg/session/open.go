package session

import (
	"fmt"

	"mercator-hq/compilegate/pkg/config"
)

// Open builds the Store selected by cfg.
func Open(cfg *config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(nil), nil
	case "sqlite":
		return NewSQLiteStore(SQLiteStoreConfig{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
