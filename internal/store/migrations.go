package store

import (
	"fmt"
	"strconv"
)

// migrate runs every migration whose version exceeds the highest one
// recorded in schema_migrations, each inside its own transaction. The
// pattern mirrors the teacher's sequential-guarded migration runner;
// unlike the teacher's, the chain here never mutates the shape of an
// already-released table — it only adds.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		s.Ready.reportProgress(fmt.Sprintf("applying schema migration %d", m.version))

		if err := s.runMigration(m.version, m.sql); err != nil {
			s.Ready.reportFailed(err)
			return err
		}
	}

	return nil
}

// SchemaVersion reports the highest migration applied to this database,
// the value GET /api/app-info surfaces as schema_version. Unlike a
// build-time constant, this tracks what's actually on disk rather than
// what the running binary was compiled expecting.
func (s *Store) SchemaVersion() (string, error) {
	var v int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return strconv.Itoa(v), nil
}

func (s *Store) runMigration(version int, sqlText string) error {
	txn, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}

	if _, err := txn.Exec(sqlText); err != nil {
		txn.Rollback()
		return fmt.Errorf("run migration %d: %w", version, err)
	}

	if _, err := txn.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		txn.Rollback()
		return fmt.Errorf("record migration %d: %w", version, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}

	return nil
}

// migration001 creates the full temporal schema in one pass: roots,
// scans, the item/item_version split that implements the live-at-scan
// model, the denormalized changes audit log, alerts, the transient
// undo log, schedules, and the scan queue.
const migration001 = `
CREATE TABLE roots (
    root_id INTEGER PRIMARY KEY,
    root_path TEXT UNIQUE NOT NULL
);

CREATE TABLE scans (
    scan_id INTEGER PRIMARY KEY,
    root_id INTEGER NOT NULL REFERENCES roots(root_id),
    state INTEGER NOT NULL,
    hash_mode INTEGER NOT NULL,
    hash_all BOOLEAN NOT NULL DEFAULT 0,
    val_mode INTEGER NOT NULL,
    val_all BOOLEAN NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    was_restarted BOOLEAN NOT NULL DEFAULT 0,
    schedule_id INTEGER,
    file_count INTEGER,
    folder_count INTEGER,
    total_size INTEGER,
    alert_count INTEGER,
    add_count INTEGER,
    modify_count INTEGER,
    delete_count INTEGER,
    error TEXT
);

CREATE INDEX idx_scans_root_id ON scans(root_id);
CREATE INDEX idx_scans_state ON scans(state);

CREATE TABLE items (
    item_id INTEGER PRIMARY KEY,
    root_id INTEGER NOT NULL REFERENCES roots(root_id),
    item_path TEXT NOT NULL COLLATE NATURALPATH,
    parent_path TEXT NOT NULL COLLATE NATURALPATH,
    item_name TEXT NOT NULL,
    item_type INTEGER NOT NULL,
    UNIQUE(root_id, item_path)
);

CREATE INDEX idx_items_root_path ON items(root_id, item_path);
CREATE INDEX idx_items_root_parent ON items(root_id, parent_path);

CREATE TABLE item_versions (
    version_id INTEGER PRIMARY KEY,
    item_id INTEGER NOT NULL REFERENCES items(item_id),
    first_scan_id INTEGER NOT NULL,
    last_scan_id INTEGER NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT 0,
    is_added BOOLEAN NOT NULL DEFAULT 0,
    mod_date DATETIME,
    size INTEGER,
    last_hash_scan INTEGER,
    file_hash TEXT,
    last_val_scan INTEGER,
    val INTEGER NOT NULL DEFAULT 0,
    val_error TEXT,
    access INTEGER NOT NULL DEFAULT 0
);

-- One row per item is live (last_scan_id = that item's current frontier);
-- this index makes "find the live version of an item" and "find all live
-- versions at scan N" both indexed lookups.
CREATE INDEX idx_item_versions_item_id ON item_versions(item_id);
CREATE INDEX idx_item_versions_range ON item_versions(first_scan_id, last_scan_id);
CREATE INDEX idx_item_versions_hash ON item_versions(file_hash);

CREATE TABLE changes (
    change_id INTEGER PRIMARY KEY,
    scan_id INTEGER NOT NULL REFERENCES scans(scan_id),
    item_id INTEGER NOT NULL REFERENCES items(item_id),
    change_type INTEGER NOT NULL,
    is_undelete BOOLEAN,
    meta_change BOOLEAN,
    mod_date_old DATETIME,
    mod_date_new DATETIME,
    size_old INTEGER,
    size_new INTEGER,
    hash_change BOOLEAN,
    last_hash_scan_old INTEGER,
    hash_old TEXT,
    hash_new TEXT,
    val_change BOOLEAN,
    last_val_scan_old INTEGER,
    val_old INTEGER,
    val_new INTEGER,
    val_error_old TEXT,
    val_error_new TEXT
);

CREATE INDEX idx_changes_scan_id ON changes(scan_id);
CREATE INDEX idx_changes_item_id ON changes(item_id);

CREATE TABLE alerts (
    alert_id INTEGER PRIMARY KEY,
    alert_type INTEGER NOT NULL,
    alert_status INTEGER NOT NULL DEFAULT 0,
    scan_id INTEGER NOT NULL REFERENCES scans(scan_id),
    item_id INTEGER NOT NULL REFERENCES items(item_id),
    created_at DATETIME NOT NULL,
    updated_at DATETIME,
    prev_hash_scan INTEGER,
    hash_old TEXT,
    hash_new TEXT,
    val_error TEXT
);

CREATE INDEX idx_alerts_status ON alerts(alert_status);
CREATE INDEX idx_alerts_item_id ON alerts(item_id);

-- Transient: truncated at the end of every scan, successful or rolled back.
CREATE TABLE scan_undo_log (
    version_id INTEGER PRIMARY KEY,
    old_last_scan_id INTEGER NOT NULL,
    old_last_hash_scan INTEGER,
    old_last_val_scan INTEGER
);

CREATE TABLE schedules (
    schedule_id INTEGER PRIMARY KEY,
    root_id INTEGER NOT NULL REFERENCES roots(root_id),
    enabled BOOLEAN NOT NULL DEFAULT 1,
    name TEXT NOT NULL,
    kind INTEGER NOT NULL,
    time_of_day TEXT,
    days_of_week TEXT,
    day_of_month INTEGER,
    interval_val INTEGER,
    interval_unit INTEGER,
    hash_mode INTEGER NOT NULL,
    val_mode INTEGER NOT NULL,
    deleted_at DATETIME
);

CREATE INDEX idx_schedules_root_id ON schedules(root_id);

CREATE TABLE scan_queue (
    queue_id INTEGER PRIMARY KEY,
    root_id INTEGER NOT NULL REFERENCES roots(root_id),
    schedule_id INTEGER REFERENCES schedules(schedule_id),
    scan_id INTEGER REFERENCES scans(scan_id),
    next_scan_time DATETIME NOT NULL,
    hash_mode INTEGER NOT NULL,
    val_mode INTEGER NOT NULL,
    source INTEGER NOT NULL
);

CREATE INDEX idx_scan_queue_next_scan_time ON scan_queue(next_scan_time);
`

// migration002 adds the high-water marks a queue entry's Sweep and
// Analyze phases persist as they batch through work, so a scan found
// still attached to its queue entry at restart can resume instead of
// redoing an entire phase.
const migration002 = `
ALTER TABLE scan_queue ADD COLUMN sweep_hwm INTEGER;
ALTER TABLE scan_queue ADD COLUMN analysis_hwm INTEGER;
`
