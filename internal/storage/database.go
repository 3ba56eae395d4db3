package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"movievault/internal/config"
	"movievault/internal/errs"
	"movievault/internal/logging"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database and pings it once.
func Open(ctx context.Context, dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		if dir := sqliteDir(dbCfg.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// A single writer avoids SQLITE_BUSY between the bot and sweeps.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// sqliteDir returns the directory holding the database file named by dsn,
// or "" for in-memory databases and the working directory.
func sqliteDir(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

// RetryPolicy bounds the connection attempts made at startup.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy makes five attempts with doubling delays.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:     5,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
}

// RetryPolicyFromConfig builds the policy from basic_config, falling back to
// DefaultRetryPolicy for unset values.
func RetryPolicyFromConfig(cfg config.BasicConfig) RetryPolicy {
	p := DefaultRetryPolicy
	if cfg.ConnectAttempts > 0 {
		p.Attempts = cfg.ConnectAttempts
	}
	if cfg.ConnectInitialDelay > 0 {
		p.InitialDelay = cfg.ConnectInitialDelay
	}
	if cfg.ConnectMaxDelay > 0 {
		p.MaxDelay = cfg.ConnectMaxDelay
	}
	return p
}

// OpenWithRetry calls Open until it succeeds or the policy is exhausted. The
// final error matches errs.ErrStoreUnavailable.
func OpenWithRetry(ctx context.Context, dbType string, cfg *config.Config, policy RetryPolicy) (*sql.DB, error) {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialDelay
	expo.Multiplier = policy.Multiplier
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0
	if policy.MaxDelay > 0 {
		expo.MaxInterval = policy.MaxDelay
	}
	expo.Reset()
	b := backoff.WithMaxRetries(backoff.WithContext(expo, ctx), uint64(policy.Attempts-1))

	var (
		db      *sql.DB
		attempt int
	)
	connect := func() error {
		attempt++
		var err error
		db, err = Open(ctx, dbType, cfg)
		return err
	}
	notify := func(err error, next time.Duration) {
		logging.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", policy.Attempts).
			Dur("retry_in", next).
			Msg("database connection failed")
	}

	if err := backoff.RetryNotify(connect, b, notify); err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.CodeStoreUnavailable, ctx.Err(), "connect cancelled")
		}
		return nil, errs.Wrap(errs.CodeStoreUnavailable, err,
			fmt.Sprintf("%s unreachable after %d attempts", dbType, attempt))
	}
	if attempt > 1 {
		logging.Info().Int("attempt", attempt).Str("driver", dbType).Msg("database connected")
	}
	return db, nil
}

// Migrate ensures the catalog tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS catalog_entries (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				name_folded TEXT NOT NULL,
				caption TEXT NOT NULL DEFAULT '',
				uploader_id INTEGER NOT NULL,
				image_ref TEXT NOT NULL,
				image_width INTEGER NOT NULL,
				image_height INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS catalog_documents (
				entry_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				asset_ref TEXT NOT NULL,
				display_name TEXT NOT NULL,
				PRIMARY KEY (entry_id, position),
				FOREIGN KEY(entry_id) REFERENCES catalog_entries(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_catalog_entries_created ON catalog_entries(created_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS catalog_entries (
				seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				id CHAR(36) NOT NULL,
				name VARCHAR(512) NOT NULL,
				name_folded VARCHAR(512) NOT NULL,
				caption TEXT NOT NULL,
				uploader_id BIGINT NOT NULL,
				image_ref VARCHAR(512) NOT NULL,
				image_width INT NOT NULL,
				image_height INT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (seq),
				UNIQUE KEY uniq_catalog_entries_id (id),
				INDEX idx_catalog_entries_created (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS catalog_documents (
				entry_id CHAR(36) NOT NULL,
				position INT NOT NULL,
				asset_ref VARCHAR(512) NOT NULL,
				display_name VARCHAR(512) NOT NULL,
				PRIMARY KEY (entry_id, position),
				CONSTRAINT fk_catalog_documents_entry FOREIGN KEY (entry_id) REFERENCES catalog_entries(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
