package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Postgres driver, selected via COACH_DATABASE_URL.
	_ "github.com/lib/pq"
	// Pure Go SQLite driver (no CGO), the default backend.
	_ "modernc.org/sqlite"
)

// Dialect names the SQL backend a Store runs on.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store wraps the database handle and provides access to repositories.
type Store struct {
	db      *sql.DB
	dialect Dialect
	seq     *sequenceCounter
}

// Open creates a Store backed by the SQLite database at dsn. It applies
// recommended pragmas and creates the schema if needed.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	return newStore(db, DialectSQLite)
}

// OpenPostgres creates a Store backed by the Postgres database at dsn
// (a lib/pq connection string or postgres:// URL).
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db, DialectPostgres)
}

// OpenDefault opens a Store from the environment: Postgres when
// COACH_DATABASE_URL is set, otherwise SQLite at the default path.
func OpenDefault() (*Store, error) {
	if dsn := os.Getenv("COACH_DATABASE_URL"); dsn != "" {
		return OpenPostgres(dsn)
	}
	p, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return Open(p)
}

func newStore(db *sql.DB, dialect Dialect) (*Store, error) {
	if err := initSchema(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	seq, err := newSequenceCounter(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: dialect, seq: seq}, nil
}

// Dialect returns the SQL backend this store runs on.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionRepo returns a SessionRepo backed by this store.
func (s *Store) SessionRepo() SessionRepo {
	return &sessionRepo{store: s}
}

// EventRepo returns an EventRepo backed by this store.
func (s *Store) EventRepo() EventRepo {
	return &eventRepo{store: s}
}

// rebind translates ? placeholders to the dialect's native form.
// Queries throughout the package are written with ? and rebound once.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// applyPragmas configures SQLite for optimal single-user performance.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the SQLite database file path in priority order:
// 1. COACH_DB environment variable
// 2. $XDG_DATA_HOME/coach/coach.db
// 3. ~/.local/share/coach/coach.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("COACH_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "coach", "coach.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
