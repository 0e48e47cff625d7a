// Package database opens the SQL pool backing the contact store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"reconciler/internal/platform/config"
)

const pingTimeout = 5 * time.Second

// Open connects to the configured SQL database, applies pool settings and
// verifies the connection with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for driver %q", cfg.Driver)
	}

	dsn := cfg.URL
	switch cfg.Driver {
	case config.DriverPostgres:
	case config.DriverSQLite:
		dsn = SQLiteDSN(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// single writer; BEGIN IMMEDIATE serializes identify transactions
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// SQLiteDSN turns a path or file: URI into a go-sqlite3 DSN with immediate
// transaction locking, foreign keys and a busy timeout.
func SQLiteDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "5000")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}
