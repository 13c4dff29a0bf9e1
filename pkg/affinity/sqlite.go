package affinity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists affinity records in SQLite so sticky routing survives
// restarts of a single compilegate instance.
//
// The database runs in WAL mode with a single connection and is
// checkpointed periodically.
type SQLiteStore struct {
	db                 *sql.DB
	clock              clock.Clock
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// Path is the database file. Use ":memory:" in tests.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// Clock is used for expiry. Default: wall clock.
	Clock clock.Clock
}

// NewSQLiteStore opens (creating if needed) the affinity database.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:                 db,
		clock:              cfg.Clock,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go s.checkpointLoop()

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clsi_affinity (
		affinity_key TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		server_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_affinity_expires_at ON clsi_affinity(expires_at);
	CREATE INDEX IF NOT EXISTS idx_affinity_project ON clsi_affinity(project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT server_id FROM clsi_affinity
		WHERE affinity_key = ? AND expires_at > ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.setStmt, err = s.db.Prepare(`
		INSERT INTO clsi_affinity (affinity_key, project_id, server_id, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (affinity_key) DO UPDATE SET
			server_id = excluded.server_id,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare set statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM clsi_affinity WHERE affinity_key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`DELETE FROM clsi_affinity WHERE expires_at <= ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (string, bool, error) {
	var serverID string
	err := s.getStmt.QueryRowContext(ctx, key.String(), s.clock.Now().UnixNano()).Scan(&serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load affinity: %w", err)
	}
	return serverID, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key Key, serverID string, ttl time.Duration) error {
	now := s.clock.Now()
	_, err := s.setStmt.ExecContext(ctx,
		key.String(), key.ProjectID, serverID, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save affinity: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if _, err := s.deleteStmt.ExecContext(ctx, key.String()); err != nil {
		return fmt.Errorf("failed to delete affinity: %w", err)
	}
	return nil
}

// PruneExpired implements Store.
func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.pruneStmt.ExecContext(ctx, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune affinity: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.deleteStmt, s.pruneStmt} {
			if stmt != nil {
				closeErr = multierr.Append(closeErr, stmt.Close())
			}
		}

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = multierr.Append(closeErr, s.db.Close())
	})

	return closeErr
}

func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
