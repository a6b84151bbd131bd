package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// InsertSuspiciousHashAlert records that an item's content hash changed
// between hashScanID and the current scan with no intervening metadata
// change recorded against it. It writes the alert row on its own,
// outside any transaction; the scan phases write alerts together with
// their version through RecordTransition instead.
func (s *Store) InsertSuspiciousHashAlert(scanID, itemID int64, prevHashScan int64, hashOld, hashNew string) (*model.Alert, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO alerts (alert_type, alert_status, scan_id, item_id, created_at, prev_hash_scan, hash_old, hash_new)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		model.AlertSuspiciousHash, model.AlertOpen, scanID, itemID, now, prevHashScan, hashOld, hashNew,
	)
	if err != nil {
		return nil, apperr.Store("insert suspicious hash alert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("insert suspicious hash alert", err)
	}
	return &model.Alert{
		AlertID: id, AlertType: model.AlertSuspiciousHash, AlertStatus: model.AlertOpen,
		ScanID: scanID, ItemID: itemID, CreatedAt: now,
		PrevHashScan: &prevHashScan, HashOld: &hashOld, HashNew: &hashNew,
	}, nil
}

// InsertInvalidItemAlert records that an item's validation state
// transitioned into ValInvalid.
func (s *Store) InsertInvalidItemAlert(scanID, itemID int64, valError string) (*model.Alert, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO alerts (alert_type, alert_status, scan_id, item_id, created_at, val_error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		model.AlertInvalidItem, model.AlertOpen, scanID, itemID, now, valError,
	)
	if err != nil {
		return nil, apperr.Store("insert invalid item alert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("insert invalid item alert", err)
	}
	return &model.Alert{
		AlertID: id, AlertType: model.AlertInvalidItem, AlertStatus: model.AlertOpen,
		ScanID: scanID, ItemID: itemID, CreatedAt: now, ValError: &valError,
	}, nil
}

// SetAlertStatus updates the triage state of an alert (Flagged/Dismissed).
func (s *Store) SetAlertStatus(alertID int64, status model.AlertStatus) error {
	now := time.Now().UTC()
	res, err := s.db.Exec("UPDATE alerts SET alert_status = ?, updated_at = ? WHERE alert_id = ?", status, now, alertID)
	if err != nil {
		return apperr.Store("set alert status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Store("set alert status", err)
	}
	if n == 0 {
		return apperr.NotFound(fmt.Sprintf("alert %d not found", alertID))
	}
	return nil
}

// BulkSetStatus updates the triage state of every alert in ids, returning
// how many rows were actually changed.
func (s *Store) BulkSetStatus(ids []int64, status model.AlertStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var total int64
	for _, id := range ids {
		res, err := s.db.Exec("UPDATE alerts SET alert_status = ?, updated_at = ? WHERE alert_id = ?", status, now, id)
		if err != nil {
			return total, apperr.Store("bulk set alert status", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, apperr.Store("bulk set alert status", err)
		}
		total += n
	}
	return total, nil
}

// BulkSetStatusByFilter updates every alert matching the optional
// alert-type/current-status filter to newStatus, returning the count
// changed.
func (s *Store) BulkSetStatusByFilter(filterType *model.AlertType, filterStatus *model.AlertStatus, newStatus model.AlertStatus) (int64, error) {
	now := time.Now().UTC()
	query := "UPDATE alerts SET alert_status = ?, updated_at = ? WHERE 1=1"
	args := []any{newStatus, now}

	if filterType != nil {
		query += " AND alert_type = ?"
		args = append(args, *filterType)
	}
	if filterStatus != nil {
		query += " AND alert_status = ?"
		args = append(args, *filterStatus)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, apperr.Store("bulk set alert status by filter", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Store("bulk set alert status by filter", err)
	}
	return n, nil
}

// ListAlerts returns alerts optionally filtered by status, newest first.
func (s *Store) ListAlerts(status *model.AlertStatus, limit, offset int) ([]*model.Alert, error) {
	var rows *sql.Rows
	var err error
	if status != nil {
		rows, err = s.db.Query(alertSelect+" WHERE alert_status = ? ORDER BY alert_id DESC LIMIT ? OFFSET ?", *status, limit, offset)
	} else {
		rows, err = s.db.Query(alertSelect+" ORDER BY alert_id DESC LIMIT ? OFFSET ?", limit, offset)
	}
	if err != nil {
		return nil, apperr.Store("list alerts", err)
	}
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		a, err := scanAlertRows(rows)
		if err != nil {
			return nil, apperr.Store("list alerts", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const alertSelect = `
	SELECT alert_id, alert_type, alert_status, scan_id, item_id, created_at, updated_at,
	       prev_hash_scan, hash_old, hash_new, val_error
	FROM alerts`

func scanAlertRows(rows *sql.Rows) (*model.Alert, error) {
	var a model.Alert
	var updatedAt sql.NullTime
	var prevHashScan sql.NullInt64
	var hashOld, hashNew, valError sql.NullString

	if err := rows.Scan(&a.AlertID, &a.AlertType, &a.AlertStatus, &a.ScanID, &a.ItemID, &a.CreatedAt, &updatedAt,
		&prevHashScan, &hashOld, &hashNew, &valError); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}
	if prevHashScan.Valid {
		a.PrevHashScan = &prevHashScan.Int64
	}
	if hashOld.Valid {
		a.HashOld = &hashOld.String
	}
	if hashNew.Valid {
		a.HashNew = &hashNew.String
	}
	if valError.Valid {
		a.ValError = &valError.String
	}
	return &a, nil
}
