package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func stateDBPathFromDataDir(dataDir string) string {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "state", "dashboard.db")
}

func openStateDB(dbPath string) (*sql.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_foreign_keys=1&_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureStateTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureStateTables(db *sql.DB) error {
	if db == nil {
		return nil
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			wallet TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			validation_key TEXT NOT NULL,
			seen_unix INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}

	// One share row per user, zero-initialized at signup and updated by the
	// external pool core via the event feed.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS shares (
			user_id INTEGER PRIMARY KEY,
			shares INTEGER NOT NULL DEFAULT 0,
			percent INTEGER NOT NULL DEFAULT 0,
			updated_at_unix INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return err
	}

	// UNIQUE(user_id, ip) makes duplicate registration an atomic
	// insert-or-reject instead of a check-then-act round trip.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			node_id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			ip TEXT NOT NULL,
			port INTEGER NOT NULL,
			connection_string TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			UNIQUE(user_id, ip)
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS nodes_user_idx ON nodes (user_id)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			payment_id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			hash TEXT NOT NULL
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS payments_user_ts_idx ON payments (user_id, timestamp_ms)`); err != nil {
		return err
	}

	// Pings are matched by raw IP string, not by (user, node); two users
	// registering the same IP share its heartbeat history.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pings (
			ping_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS pings_ip_idx ON pings (ip)`); err != nil {
		return err
	}

	// Aggregated pool earnings per hourly round, keyed by the round nonce.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallet (
			entry_id INTEGER PRIMARY KEY AUTOINCREMENT,
			nonce TEXT NOT NULL,
			amount INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS wallet_nonce_idx ON wallet (nonce)`); err != nil {
		return err
	}

	// Sessions store the SHA-256 of the issued token, never the token itself.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token_sha256 TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at_unix INTEGER NOT NULL
		)
	`); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS sessions_expires_idx ON sessions (expires_at_unix)`); err != nil {
		return err
	}

	return nil
}
