package store

import (
	"database/sql"
	"time"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// PendingAlert is an alert the detector wants written alongside the
// version transition that triggered it.
type PendingAlert struct {
	Type         model.AlertType
	PrevHashScan *int64
	HashOld      *string
	HashNew      *string
	ValError     *string
}

// RecordTransition atomically writes a new item_versions row, its
// accompanying changes row, and — if the detector fired — an alerts row,
// all in one transaction so a reader never observes a change without its
// version or a version without its change.
func (s *Store) RecordTransition(version NewVersionInput, change *model.Change, alert *PendingAlert) (*model.ItemVersion, *model.Alert, error) {
	var createdVersion *model.ItemVersion
	var createdAlert *model.Alert

	err := s.tx(func(txn *sql.Tx) error {
		res, err := txn.Exec(`
			INSERT INTO item_versions
				(item_id, first_scan_id, last_scan_id, is_deleted, is_added, mod_date, size,
				 last_hash_scan, file_hash, last_val_scan, val, val_error, access)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			version.ItemID, version.ScanID, version.ScanID, version.IsDeleted, version.IsAdded,
			version.ModDate, version.Size, version.LastHashScan, version.FileHash, version.LastValScan,
			version.Val, version.ValError, version.Access,
		)
		if err != nil {
			return err
		}
		versionID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		createdVersion = &model.ItemVersion{
			VersionID: versionID, ItemID: version.ItemID, FirstScanID: version.ScanID, LastScanID: version.ScanID,
			IsDeleted: version.IsDeleted, IsAdded: version.IsAdded, ModDate: version.ModDate, Size: version.Size,
			LastHashScan: version.LastHashScan, FileHash: version.FileHash, LastValScan: version.LastValScan,
			Val: version.Val, ValError: version.ValError, Access: version.Access,
		}

		if change != nil {
			change.ScanID = version.ScanID
			change.ItemID = version.ItemID
			if _, err := txn.Exec(`
				INSERT INTO changes
					(scan_id, item_id, change_type, is_undelete, meta_change,
					 mod_date_old, mod_date_new, size_old, size_new,
					 hash_change, last_hash_scan_old, hash_old, hash_new,
					 val_change, last_val_scan_old, val_old, val_new, val_error_old, val_error_new)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				change.ScanID, change.ItemID, change.ChangeType, change.IsUndelete, change.MetaChange,
				change.ModDateOld, change.ModDateNew, change.SizeOld, change.SizeNew,
				change.HashChange, change.LastHashScanOld, change.HashOld, change.HashNew,
				change.ValChange, change.LastValScanOld, change.ValOld, change.ValNew, change.ValErrorOld, change.ValErrorNew,
			); err != nil {
				return err
			}
		}

		if alert != nil {
			now := time.Now().UTC()
			res, err := txn.Exec(`
				INSERT INTO alerts (alert_type, alert_status, scan_id, item_id, created_at, prev_hash_scan, hash_old, hash_new, val_error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				alert.Type, model.AlertOpen, version.ScanID, version.ItemID, now,
				alert.PrevHashScan, alert.HashOld, alert.HashNew, alert.ValError,
			)
			if err != nil {
				return err
			}
			alertID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			createdAlert = &model.Alert{
				AlertID: alertID, AlertType: alert.Type, AlertStatus: model.AlertOpen,
				ScanID: version.ScanID, ItemID: version.ItemID, CreatedAt: now,
				PrevHashScan: alert.PrevHashScan, HashOld: alert.HashOld, HashNew: alert.HashNew, ValError: alert.ValError,
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, apperr.Store("record transition", err)
	}

	return createdVersion, createdAlert, nil
}
