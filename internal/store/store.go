package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeoutMS = 5000

// poolOptions sizes the database/sql pool. SQLite allows one writer, so
// the defaults keep a single connection and let busy_timeout absorb
// contention from view-count updates.
type poolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

var defaultPoolOptions = poolOptions{MaxOpen: 1, MaxIdle: 1, MaxLifetime: 5 * time.Minute}

const (
	maxOpenConnsEnvKey    = "MEDIASRV_DB_MAX_OPEN_CONNS"
	maxIdleConnsEnvKey    = "MEDIASRV_DB_MAX_IDLE_CONNS"
	connMaxLifetimeEnvKey = "MEDIASRV_DB_CONN_MAX_LIFETIME"
)

// poolOptionsFromEnv overlays positive env overrides on the defaults.
func poolOptionsFromEnv() poolOptions {
	opts := defaultPoolOptions
	if n, ok := positiveIntEnv(maxOpenConnsEnvKey); ok {
		opts.MaxOpen = n
	}
	if n, ok := positiveIntEnv(maxIdleConnsEnvKey); ok {
		opts.MaxIdle = n
	}
	if d, ok := positiveDurationEnv(connMaxLifetimeEnvKey); ok {
		opts.MaxLifetime = d
	}
	return opts
}

func (o poolOptions) apply(db *sql.DB) {
	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(min(o.MaxIdle, o.MaxOpen))
	db.SetConnMaxLifetime(o.MaxLifetime)
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenRaw opens the database without configuring it or running migrations.
func OpenRaw(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	poolOptionsFromEnv().apply(db)
	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func positiveIntEnv(key string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	return n, err == nil && n > 0
}

// positiveDurationEnv accepts Go durations ("45s") or bare seconds ("30").
func positiveDurationEnv(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	}
	return d, d > 0
}
