package affinity

import (
	"fmt"

	"mercator-hq/compilegate/pkg/config"
)

// Open builds the Store selected by cfg.
func Open(cfg *config.AffinityConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(MemoryStoreConfig{
			MaxEntries: cfg.MaxEntries,
			MaxTTL:     cfg.TTL,
		}), nil
	case "sqlite":
		return NewSQLiteStore(SQLiteStoreConfig{
			Path:               cfg.SQLite.Path,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		})
	default:
		return nil, fmt.Errorf("unknown affinity backend %q", cfg.Backend)
	}
}
