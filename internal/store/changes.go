package store

import (
	"database/sql"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// InsertChange records the denormalized audit row describing the delta
// between an item's prior live version and the one scanID just made
// live. It writes the change row on its own, outside any transaction;
// RecordTransition writes a change together with its version.
func (s *Store) InsertChange(c *model.Change) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO changes
			(scan_id, item_id, change_type, is_undelete, meta_change,
			 mod_date_old, mod_date_new, size_old, size_new,
			 hash_change, last_hash_scan_old, hash_old, hash_new,
			 val_change, last_val_scan_old, val_old, val_new, val_error_old, val_error_new)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ScanID, c.ItemID, c.ChangeType, c.IsUndelete, c.MetaChange,
		c.ModDateOld, c.ModDateNew, c.SizeOld, c.SizeNew,
		c.HashChange, c.LastHashScanOld, c.HashOld, c.HashNew,
		c.ValChange, c.LastValScanOld, c.ValOld, c.ValNew, c.ValErrorOld, c.ValErrorNew,
	)
	if err != nil {
		return 0, apperr.Store("insert change", err)
	}
	return res.LastInsertId()
}

// HadMetaChangeBetween reports whether any change row for itemID between
// the two scan ids (exclusive) recorded a metadata change. Used by the
// alert detector to distinguish a legitimate touch-without-content-change
// from a suspicious silent hash change.
func (s *Store) HadMetaChangeBetween(itemID, afterScanID, beforeScanID int64) (bool, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM changes
			WHERE item_id = ? AND scan_id > ? AND scan_id < ? AND meta_change = 1
		)`, itemID, afterScanID, beforeScanID).Scan(&exists)
	if err != nil {
		return false, apperr.Store("had meta change between", err)
	}
	return exists == 1, nil
}

// ChangesForScan lists every change row recorded by a scan.
func (s *Store) ChangesForScan(scanID int64) ([]*model.Change, error) {
	rows, err := s.db.Query(`
		SELECT change_id, scan_id, item_id, change_type, is_undelete, meta_change,
		       mod_date_old, mod_date_new, size_old, size_new,
		       hash_change, last_hash_scan_old, hash_old, hash_new,
		       val_change, last_val_scan_old, val_old, val_new, val_error_old, val_error_new
		FROM changes WHERE scan_id = ? ORDER BY change_id`, scanID)
	if err != nil {
		return nil, apperr.Store("changes for scan", err)
	}
	defer rows.Close()

	var out []*model.Change
	for rows.Next() {
		var c model.Change
		var isUndelete, metaChange, hashChange, valChange sql.NullBool
		var modDateOld, modDateNew sql.NullTime
		var sizeOld, sizeNew, lastHashScanOld, lastValScanOld sql.NullInt64
		var hashOld, hashNew, valErrorOld, valErrorNew sql.NullString
		var valOld, valNew sql.NullInt64

		if err := rows.Scan(&c.ChangeID, &c.ScanID, &c.ItemID, &c.ChangeType, &isUndelete, &metaChange,
			&modDateOld, &modDateNew, &sizeOld, &sizeNew,
			&hashChange, &lastHashScanOld, &hashOld, &hashNew,
			&valChange, &lastValScanOld, &valOld, &valNew, &valErrorOld, &valErrorNew); err != nil {
			return nil, apperr.Store("changes for scan", err)
		}

		if isUndelete.Valid {
			c.IsUndelete = &isUndelete.Bool
		}
		if metaChange.Valid {
			c.MetaChange = &metaChange.Bool
		}
		if modDateOld.Valid {
			c.ModDateOld = &modDateOld.Time
		}
		if modDateNew.Valid {
			c.ModDateNew = &modDateNew.Time
		}
		if sizeOld.Valid {
			c.SizeOld = &sizeOld.Int64
		}
		if sizeNew.Valid {
			c.SizeNew = &sizeNew.Int64
		}
		if hashChange.Valid {
			c.HashChange = &hashChange.Bool
		}
		if lastHashScanOld.Valid {
			c.LastHashScanOld = &lastHashScanOld.Int64
		}
		if hashOld.Valid {
			c.HashOld = &hashOld.String
		}
		if hashNew.Valid {
			c.HashNew = &hashNew.String
		}
		if valChange.Valid {
			c.ValChange = &valChange.Bool
		}
		if lastValScanOld.Valid {
			c.LastValScanOld = &lastValScanOld.Int64
		}
		if valOld.Valid {
			vs := model.ValState(valOld.Int64)
			c.ValOld = &vs
		}
		if valNew.Valid {
			vs := model.ValState(valNew.Int64)
			c.ValNew = &vs
		}
		if valErrorOld.Valid {
			c.ValErrorOld = &valErrorOld.String
		}
		if valErrorNew.Valid {
			c.ValErrorNew = &valErrorNew.String
		}

		out = append(out, &c)
	}
	return out, rows.Err()
}
