package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the event store connections. WAL mode allows one writer and
// concurrent readers, so the pools are split: the write pool is pinned to a
// single connection and the read pool serves the query surface.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger
}

// configureConnection applies the pragmas every pool needs.
func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory" journal mode, not "wal".
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s) - durability guarantees will not hold", journalMode)
	}
	return nil
}

// NewSQLite opens the event store, creating the parent directory if needed.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write pool: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	if err := configureConnection(writeDB, dbPath); err != nil {
		writeDB.Close()
		return nil, err
	}

	// The in-memory database is per-connection; a second pool would see a
	// different empty database, so reads share the write pool there.
	readDB := writeDB
	if dbPath != ":memory:" {
		readDB, err = sql.Open("sqlite", dbPath)
		if err != nil {
			writeDB.Close()
			return nil, fmt.Errorf("failed to open SQLite read pool: %w", err)
		}
		readDB.SetMaxOpenConns(10)
		if err := configureConnection(readDB, dbPath); err != nil {
			writeDB.Close()
			readDB.Close()
			return nil, err
		}
	}

	logger.Infof("SQLite event store opened at %s", dbPath)

	return &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}, nil
}

// Close closes both connection pools.
func (s *SQLite) Close() {
	if s.ReadDB != nil && s.ReadDB != s.WriteDB {
		if err := s.ReadDB.Close(); err != nil {
			s.Logger.Errorw("Failed to close SQLite read pool", "error", err)
		}
	}
	if s.WriteDB != nil {
		if err := s.WriteDB.Close(); err != nil {
			s.Logger.Errorw("Failed to close SQLite write pool", "error", err)
		}
	}
}
