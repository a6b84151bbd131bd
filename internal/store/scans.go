package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// CreateScan starts a new scan row in ScanScanning state.
func (s *Store) CreateScan(rootID int64, hashMode model.HashMode, hashAll bool, valMode model.ValMode, valAll bool, scheduleID *int64) (*model.Scan, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO scans (root_id, state, hash_mode, hash_all, val_mode, val_all, started_at, schedule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rootID, model.ScanScanning, hashMode, hashAll, valMode, valAll, now, scheduleID,
	)
	if err != nil {
		return nil, apperr.Store("create scan", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("create scan", err)
	}
	return s.GetScan(id)
}

// GetScan fetches a scan by id.
func (s *Store) GetScan(scanID int64) (*model.Scan, error) {
	row := s.db.QueryRow(`
		SELECT scan_id, root_id, state, hash_mode, hash_all, val_mode, val_all,
		       started_at, ended_at, was_restarted, schedule_id,
		       file_count, folder_count, total_size, alert_count, add_count, modify_count, delete_count, error
		FROM scans WHERE scan_id = ?`, scanID)
	sc, err := scanScanRow(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("scan %d not found", scanID))
	}
	if err != nil {
		return nil, apperr.Store("get scan", err)
	}
	return sc, nil
}

// ListScansForRoot returns the most recent scans for a root, newest first.
func (s *Store) ListScansForRoot(rootID int64, limit int) ([]*model.Scan, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, root_id, state, hash_mode, hash_all, val_mode, val_all,
		       started_at, ended_at, was_restarted, schedule_id,
		       file_count, folder_count, total_size, alert_count, add_count, modify_count, delete_count, error
		FROM scans WHERE root_id = ? ORDER BY scan_id DESC LIMIT ?`, rootID, limit)
	if err != nil {
		return nil, apperr.Store("list scans", err)
	}
	defer rows.Close()

	var out []*model.Scan
	for rows.Next() {
		sc, err := scanScanRows(rows)
		if err != nil {
			return nil, apperr.Store("list scans", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ActiveScans returns every scan not yet in a terminal state. On process
// start this drives restart recovery: any scan found here survived an
// unclean shutdown and must be failed out or resumed.
func (s *Store) ActiveScans() ([]*model.Scan, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, root_id, state, hash_mode, hash_all, val_mode, val_all,
		       started_at, ended_at, was_restarted, schedule_id,
		       file_count, folder_count, total_size, alert_count, add_count, modify_count, delete_count, error
		FROM scans WHERE state NOT IN (?, ?, ?)`,
		model.ScanCompleted, model.ScanStopped, model.ScanError)
	if err != nil {
		return nil, apperr.Store("active scans", err)
	}
	defer rows.Close()

	var out []*model.Scan
	for rows.Next() {
		sc, err := scanScanRows(rows)
		if err != nil {
			return nil, apperr.Store("active scans", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// SetScanState transitions a scan's lifecycle state.
func (s *Store) SetScanState(scanID int64, state model.ScanState) error {
	_, err := s.db.Exec("UPDATE scans SET state = ? WHERE scan_id = ?", state, scanID)
	if err != nil {
		return apperr.Store("set scan state", err)
	}
	return nil
}

// MarkRestarted flags a scan found active at process start as resumed
// after an unclean shutdown, per the restart-recovery flow.
func (s *Store) MarkRestarted(scanID int64) error {
	_, err := s.db.Exec("UPDATE scans SET was_restarted = 1 WHERE scan_id = ?", scanID)
	if err != nil {
		return apperr.Store("mark restarted", err)
	}
	return nil
}

// FailScan terminates a scan in ScanError state with a message, used both
// for in-scan failures and for unrecoverable restarted scans.
func (s *Store) FailScan(scanID int64, message string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		"UPDATE scans SET state = ?, ended_at = ?, error = ? WHERE scan_id = ?",
		model.ScanError, now, message, scanID,
	)
	if err != nil {
		return apperr.Store("fail scan", err)
	}
	return nil
}

// CompleteScan finalizes a scan's summary counters and marks it Completed
// or Stopped.
func (s *Store) CompleteScan(scanID int64, state model.ScanState, counts ScanCounts) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		UPDATE scans SET state = ?, ended_at = ?, file_count = ?, folder_count = ?, total_size = ?,
		       alert_count = ?, add_count = ?, modify_count = ?, delete_count = ?
		WHERE scan_id = ?`,
		state, now, counts.FileCount, counts.FolderCount, counts.TotalSize,
		counts.AlertCount, counts.AddCount, counts.ModifyCount, counts.DeleteCount, scanID,
	)
	if err != nil {
		return apperr.Store("complete scan", err)
	}
	return nil
}

// ScanSummary computes a scan's final tally directly from committed
// item_versions/changes/alerts rows, rather than from counters threaded
// through the phases in memory. A resumed scan's in-memory counters from
// before the restart are gone, but every row they would have counted is
// already durably committed (each phase writes one item at a time, not
// inside one scan-long transaction), so querying for the final numbers
// here is correct whether or not this scan was interrupted along the way.
func (s *Store) ScanSummary(rootID, scanID int64) (ScanCounts, error) {
	var counts ScanCounts

	var fileCount, folderCount, totalSize sql.NullInt64
	err := s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN items.item_type = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN items.item_type = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN items.item_type = ? THEN item_versions.size ELSE 0 END)
		FROM item_versions
		JOIN items ON items.item_id = item_versions.item_id
		WHERE items.root_id = ? AND item_versions.first_scan_id <= ? AND item_versions.last_scan_id >= ?
		      AND item_versions.is_deleted = 0`,
		model.ItemFile, model.ItemDirectory, model.ItemFile, rootID, scanID, scanID,
	).Scan(&fileCount, &folderCount, &totalSize)
	if err != nil {
		return counts, apperr.Store("scan summary", err)
	}
	counts.FileCount = fileCount.Int64
	counts.FolderCount = folderCount.Int64
	counts.TotalSize = totalSize.Int64

	var addCount, modifyCount, deleteCount sql.NullInt64
	err = s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN change_type = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN change_type = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN change_type = ? THEN 1 ELSE 0 END)
		FROM changes WHERE scan_id = ?`,
		model.ChangeAdd, model.ChangeModify, model.ChangeDelete, scanID,
	).Scan(&addCount, &modifyCount, &deleteCount)
	if err != nil {
		return counts, apperr.Store("scan summary", err)
	}
	counts.AddCount = addCount.Int64
	counts.ModifyCount = modifyCount.Int64
	counts.DeleteCount = deleteCount.Int64

	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts WHERE scan_id = ?", scanID).Scan(&counts.AlertCount); err != nil {
		return counts, apperr.Store("scan summary", err)
	}

	return counts, nil
}

// ScanCounts is the final tally recorded against a completed scan.
type ScanCounts struct {
	FileCount   int64
	FolderCount int64
	TotalSize   int64
	AlertCount  int64
	AddCount    int64
	ModifyCount int64
	DeleteCount int64
}

func scanScanRow(row *sql.Row) (*model.Scan, error) {
	var sc model.Scan
	var endedAt sql.NullTime
	var scheduleID sql.NullInt64
	var fileCount, folderCount, totalSize, alertCount, addCount, modifyCount, deleteCount sql.NullInt64
	var errMsg sql.NullString

	err := row.Scan(&sc.ScanID, &sc.RootID, &sc.State, &sc.HashMode, &sc.HashAll, &sc.ValMode, &sc.ValAll,
		&sc.StartedAt, &endedAt, &sc.WasRestarted, &scheduleID,
		&fileCount, &folderCount, &totalSize, &alertCount, &addCount, &modifyCount, &deleteCount, &errMsg)
	if err != nil {
		return nil, err
	}
	applyScanNullables(&sc, endedAt, scheduleID, fileCount, folderCount, totalSize, alertCount, addCount, modifyCount, deleteCount, errMsg)
	return &sc, nil
}

func scanScanRows(rows *sql.Rows) (*model.Scan, error) {
	var sc model.Scan
	var endedAt sql.NullTime
	var scheduleID sql.NullInt64
	var fileCount, folderCount, totalSize, alertCount, addCount, modifyCount, deleteCount sql.NullInt64
	var errMsg sql.NullString

	err := rows.Scan(&sc.ScanID, &sc.RootID, &sc.State, &sc.HashMode, &sc.HashAll, &sc.ValMode, &sc.ValAll,
		&sc.StartedAt, &endedAt, &sc.WasRestarted, &scheduleID,
		&fileCount, &folderCount, &totalSize, &alertCount, &addCount, &modifyCount, &deleteCount, &errMsg)
	if err != nil {
		return nil, err
	}
	applyScanNullables(&sc, endedAt, scheduleID, fileCount, folderCount, totalSize, alertCount, addCount, modifyCount, deleteCount, errMsg)
	return &sc, nil
}

func applyScanNullables(sc *model.Scan, endedAt sql.NullTime, scheduleID, fileCount, folderCount, totalSize, alertCount, addCount, modifyCount, deleteCount sql.NullInt64, errMsg sql.NullString) {
	if endedAt.Valid {
		sc.EndedAt = &endedAt.Time
	}
	if scheduleID.Valid {
		sc.ScheduleID = &scheduleID.Int64
	}
	if fileCount.Valid {
		sc.FileCount = &fileCount.Int64
	}
	if folderCount.Valid {
		sc.FolderCount = &folderCount.Int64
	}
	if totalSize.Valid {
		sc.TotalSize = &totalSize.Int64
	}
	if alertCount.Valid {
		sc.AlertCount = &alertCount.Int64
	}
	if addCount.Valid {
		sc.AddCount = &addCount.Int64
	}
	if modifyCount.Valid {
		sc.ModifyCount = &modifyCount.Int64
	}
	if deleteCount.Valid {
		sc.DeleteCount = &deleteCount.Int64
	}
	if errMsg.Valid {
		sc.Error = &errMsg.String
	}
}
