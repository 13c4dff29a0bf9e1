package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	sid        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

// SQLiteStoreConfig configures the SQLite session store.
type SQLiteStoreConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Clock decides expiry. Default: wall clock.
	Clock clock.Clock
}

// SQLiteStore keeps sessions in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	clock  clock.Clock
	logger *slog.Logger

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	deleteStmt *sql.Stmt

	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens or creates the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, &StorageError{Backend: "sqlite", Op: "open", Cause: errors.New("path is required")}
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		clock:  cfg.Clock,
		logger: slog.Default().With("component", "session.store.sqlite"),
	}
	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite session store initialized", "path", cfg.Path)
	return s, nil
}

func (s *SQLiteStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return &StorageError{Backend: "sqlite", Op: "enable_wal", Cause: err}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return &StorageError{Backend: "sqlite", Op: "set_busy_timeout", Cause: err}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return &StorageError{Backend: "sqlite", Op: "create_schema", Cause: err}
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return &StorageError{Backend: "sqlite", Op: "insert_schema_version", Cause: err}
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return &StorageError{Backend: "sqlite", Op: "get_schema_version", Cause: err}
	}
	if version != schemaVersion {
		return &StorageError{Backend: "sqlite", Op: "schema_version_mismatch",
			Cause: fmt.Errorf("expected schema version %d, got %d", schemaVersion, version)}
	}

	var err error
	if s.getStmt, err = s.db.Prepare("SELECT data, expires_at FROM sessions WHERE sid = ?"); err != nil {
		return &StorageError{Backend: "sqlite", Op: "prepare_get", Cause: err}
	}
	if s.setStmt, err = s.db.Prepare(`INSERT INTO sessions (sid, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`); err != nil {
		return &StorageError{Backend: "sqlite", Op: "prepare_set", Cause: err}
	}
	if s.deleteStmt, err = s.db.Prepare("DELETE FROM sessions WHERE sid = ?"); err != nil {
		return &StorageError{Backend: "sqlite", Op: "prepare_delete", Cause: err}
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.getStmt.QueryRowContext(ctx, id).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "get", Cause: err}
	}
	if s.clock.Now().UnixNano() >= expiresAt {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "decode", Cause: err}
	}
	sess.ID = id
	return &sess, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return &StorageError{Backend: "sqlite", Op: "encode", Cause: err}
	}
	expiresAt := s.clock.Now().Add(ttl).UnixNano()
	if _, err := s.setStmt.ExecContext(ctx, sess.ID, string(data), expiresAt); err != nil {
		return &StorageError{Backend: "sqlite", Op: "set", Cause: err}
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.deleteStmt.ExecContext(ctx, id); err != nil {
		return &StorageError{Backend: "sqlite", Op: "delete", Cause: err}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = multierr.Combine(
			s.getStmt.Close(),
			s.setStmt.Close(),
			s.deleteStmt.Close(),
			s.db.Close(),
		)
	})
	return s.closeErr
}
