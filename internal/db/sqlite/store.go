// Package sqlite is the embedded db.Store driver built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/saucebot/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
)`

// Config holds settings for the embedded store.
type Config struct {
	Path string // database file; ":memory:" keeps everything in RAM
}

// Store implements db.Store on a single SQLite key-value table.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (or creates) the database file and applies the schema.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	// One writer connection: SQLite serializes writes anyway, and ":memory:"
	// databases are per-connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, &db.Error{Op: db.OpSchema, Err: err}
	}

	return &Store{db: conn, path: cfg.Path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// WaitForReady returns once the file is usable. An embedded database is either
// ready immediately or broken, so a single ping under the timeout suffices.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Ping(ctx)
}

// Close releases the database handle.
func (s *Store) Close() {
	_ = s.db.Close()
}

// Get retrieves a value by key. Expired rows read as missing.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	if expiresAt > 0 && s.now().Unix() >= expiresAt {
		return nil, db.ErrKeyNotFound
	}
	return value, nil
}

// Set stores a value at the given key, clearing any previous expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.upsert(ctx, key, value, 0)
}

// SetWithTTL stores a value that reads as missing once ttl has elapsed.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.upsert(ctx, key, value, s.now().Add(ttl).Unix())
}

// Flush checkpoints the write-ahead log into the main database file and
// drops expired rows.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`, s.now().Unix(),
	); err != nil {
		return &db.Error{Op: db.OpFlush, Err: err}
	}
	if s.path == ":memory:" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &db.Error{Op: db.OpFlush, Err: err}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, key string, value []byte, expiresAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
