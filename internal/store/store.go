// Package store owns all SQLite persistence: connection setup, schema
// migrations, and CRUD for every entity in internal/model. Callers never
// see a *sql.DB — they go through the typed methods on *Store.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection pool plus the logger and ready flag
// components that depend on it.
type Store struct {
	db    *sql.DB
	log   zerolog.Logger
	Ready *ReadyFlag
}

// Open opens path, applies the PRAGMAs fspulse needs (WAL journaling,
// foreign keys, a busy timeout so concurrent scan/API access doesn't
// surface SQLITE_BUSY to callers), registers the natural path collation,
// and runs pending migrations.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if err := registerNaturalCollation(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("register collation: %w", err)
	}

	s := &Store{db: db, log: log, Ready: NewReadyFlag()}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.Ready.SetReady()

	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint forces a WAL checkpoint, blocking until it completes. Used
// before Compact so the WAL doesn't grow unbounded.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// DatabaseStats is the point-in-time size summary exposed by the
// database-stats API endpoint.
type DatabaseStats struct {
	SizeBytes     int64
	PageCount     int64
	PageSize      int64
	FreelistPages int64
}

// Stats reports the current on-disk size of the database file.
func (s *Store) Stats() (DatabaseStats, error) {
	var stats DatabaseStats
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return stats, err
	}
	if err := s.db.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistPages); err != nil {
		return stats, err
	}
	stats.SizeBytes = stats.PageSize * stats.PageCount
	return stats, nil
}

// Compact runs VACUUM, logging the before/after size. It holds an
// exclusive lock on the database for its duration; the Task Manager
// runs it as its own exclusive task kind rather than alongside a scan.
func (s *Store) Compact() error {
	before, err := s.Stats()
	if err != nil {
		return fmt.Errorf("stats before compact: %w", err)
	}

	start := time.Now()
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}

	after, err := s.Stats()
	if err != nil {
		return fmt.Errorf("stats after compact: %w", err)
	}

	s.log.Info().
		Int64("size_before_bytes", before.SizeBytes).
		Int64("size_after_bytes", after.SizeBytes).
		Dur("elapsed", time.Since(start)).
		Msg("database compacted")

	return nil
}

// tx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) tx(fn func(*sql.Tx) error) (err error) {
	txn, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			txn.Rollback()
			panic(p)
		}
		if err != nil {
			txn.Rollback()
		}
	}()

	if err = fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}
