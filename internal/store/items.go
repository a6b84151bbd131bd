package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/undolog"
)

// FindOrCreateItem returns the existing item at rootID/path, or creates
// one. Item identity is permanent: a path is only ever assigned one
// item_id for the lifetime of the root, even across delete/re-add cycles
// (the add-after-delete invariant), so callers must always route through
// here rather than inserting directly.
func (s *Store) FindOrCreateItem(rootID int64, path, name string, itemType model.ItemType) (item *model.Item, created bool, err error) {
	existing, err := s.GetItemByPath(rootID, path)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	parent := filepath.Dir(path)
	res, err := s.db.Exec(
		"INSERT INTO items (root_id, item_path, parent_path, item_name, item_type) VALUES (?, ?, ?, ?, ?)",
		rootID, path, parent, name, itemType,
	)
	if err != nil {
		return nil, false, apperr.Store("create item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, apperr.Store("create item", err)
	}
	return &model.Item{ItemID: id, RootID: rootID, ItemPath: path, ParentPath: parent, ItemName: name, ItemType: itemType}, true, nil
}

// GetItemByPath returns the item at rootID/path, or nil if none exists.
func (s *Store) GetItemByPath(rootID int64, path string) (*model.Item, error) {
	var it model.Item
	err := s.db.QueryRow(
		"SELECT item_id, root_id, item_path, parent_path, item_name, item_type FROM items WHERE root_id = ? AND item_path = ?",
		rootID, path,
	).Scan(&it.ItemID, &it.RootID, &it.ItemPath, &it.ParentPath, &it.ItemName, &it.ItemType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("get item by path", err)
	}
	return &it, nil
}

// GetItem fetches an item by id.
func (s *Store) GetItem(itemID int64) (*model.Item, error) {
	var it model.Item
	err := s.db.QueryRow(
		"SELECT item_id, root_id, item_path, parent_path, item_name, item_type FROM items WHERE item_id = ?",
		itemID,
	).Scan(&it.ItemID, &it.RootID, &it.ItemPath, &it.ParentPath, &it.ItemName, &it.ItemType)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound(fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return nil, apperr.Store("get item", err)
	}
	return &it, nil
}

// LiveVersion returns the item's current head version: the one with the
// highest first_scan_id. Invariant P1 guarantees there is at most one.
func (s *Store) LiveVersion(itemID int64) (*model.ItemVersion, error) {
	row := s.db.QueryRow(itemVersionSelect+" WHERE item_id = ? ORDER BY first_scan_id DESC LIMIT 1", itemID)
	v, err := scanItemVersionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("live version", err)
	}
	return v, nil
}

// LiveVersionsAtScan returns every version live at scanID under rootID:
// the point-in-time snapshot of the tree, ordered by item_id so the
// Analyze phase can track an analysis_hwm and resume past it.
func (s *Store) LiveVersionsAtScan(rootID, scanID int64) ([]*model.ItemVersion, error) {
	rows, err := s.db.Query(itemVersionSelect+`
		JOIN items ON items.item_id = item_versions.item_id
		WHERE items.root_id = ? AND item_versions.first_scan_id <= ? AND item_versions.last_scan_id >= ?
		      AND item_versions.is_deleted = 0
		ORDER BY items.item_id ASC`,
		rootID, scanID, scanID,
	)
	if err != nil {
		return nil, apperr.Store("live versions at scan", err)
	}
	defer rows.Close()
	return scanItemVersionRows(rows)
}

// ExtendVersion records the pre-update state in the undo log, then pushes
// the live version's frontier forward to scanID without creating a new
// row. Used when a scan observes no change to an item.
func (s *Store) ExtendVersion(v *model.ItemVersion, scanID int64, newLastHashScan, newLastValScan *int64) error {
	if err := undolog.Log(s.db, scanID, v); err != nil {
		return apperr.Store("extend version", err)
	}

	hashScan := v.LastHashScan
	if newLastHashScan != nil {
		hashScan = newLastHashScan
	}
	valScan := v.LastValScan
	if newLastValScan != nil {
		valScan = newLastValScan
	}

	_, err := s.db.Exec(
		"UPDATE item_versions SET last_scan_id = ?, last_hash_scan = ?, last_val_scan = ? WHERE version_id = ?",
		scanID, hashScan, valScan, v.VersionID,
	)
	if err != nil {
		return apperr.Store("extend version", err)
	}
	return nil
}

// NewVersionInput describes a new item_versions row created by a scan.
type NewVersionInput struct {
	ItemID       int64
	ScanID       int64
	IsDeleted    bool
	IsAdded      bool
	ModDate      *time.Time
	Size         *int64
	LastHashScan *int64
	FileHash     *string
	LastValScan  *int64
	Val          model.ValState
	ValError     *string
	Access       model.AccessState
}

// InsertVersion creates a new item_versions row with first_scan_id =
// last_scan_id = scanID, becoming the item's new live version. It writes
// the version row alone, with no changes row; the scan phases record
// their transitions through RecordTransition, which writes both.
func (s *Store) InsertVersion(in NewVersionInput) (*model.ItemVersion, error) {
	res, err := s.db.Exec(`
		INSERT INTO item_versions
			(item_id, first_scan_id, last_scan_id, is_deleted, is_added, mod_date, size,
			 last_hash_scan, file_hash, last_val_scan, val, val_error, access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ItemID, in.ScanID, in.ScanID, in.IsDeleted, in.IsAdded, in.ModDate, in.Size,
		in.LastHashScan, in.FileHash, in.LastValScan, in.Val, in.ValError, in.Access,
	)
	if err != nil {
		return nil, apperr.Store("insert version", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("insert version", err)
	}
	return &model.ItemVersion{
		VersionID: id, ItemID: in.ItemID, FirstScanID: in.ScanID, LastScanID: in.ScanID,
		IsDeleted: in.IsDeleted, IsAdded: in.IsAdded, ModDate: in.ModDate, Size: in.Size,
		LastHashScan: in.LastHashScan, FileHash: in.FileHash, LastValScan: in.LastValScan,
		Val: in.Val, ValError: in.ValError, Access: in.Access,
	}, nil
}

// UnseenLiveItems returns every item under rootID whose live version is
// not yet deleted and was not touched (extended or superseded) by
// scanID — the Sweep phase's candidates for a Delete transition.
// afterItemID excludes everything up to and including a resumed scan's
// persisted sweep_hwm; pass 0 for a fresh sweep. Ordered by item_id so
// the hwm the caller commits is well-defined.
func (s *Store) UnseenLiveItems(rootID, scanID, afterItemID int64) ([]*model.Item, []*model.ItemVersion, error) {
	rows, err := s.db.Query(itemVersionSelect+`
		JOIN items ON items.item_id = item_versions.item_id
		WHERE items.root_id = ?
		      AND items.item_id > ?
		      AND item_versions.is_deleted = 0
		      AND item_versions.last_scan_id < ?
		      AND item_versions.version_id = (
		          SELECT MAX(iv2.version_id) FROM item_versions iv2 WHERE iv2.item_id = items.item_id
		      )
		ORDER BY items.item_id ASC`,
		rootID, afterItemID, scanID,
	)
	if err != nil {
		return nil, nil, apperr.Store("unseen live items", err)
	}
	defer rows.Close()

	versions, err := scanItemVersionRows(rows)
	if err != nil {
		return nil, nil, err
	}

	items := make([]*model.Item, 0, len(versions))
	for _, v := range versions {
		it, err := s.GetItem(v.ItemID)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return items, versions, nil
}

const itemVersionSelect = `
	SELECT item_versions.version_id, item_versions.item_id, item_versions.first_scan_id, item_versions.last_scan_id,
	       item_versions.is_deleted, item_versions.is_added, item_versions.mod_date, item_versions.size,
	       item_versions.last_hash_scan, item_versions.file_hash, item_versions.last_val_scan,
	       item_versions.val, item_versions.val_error, item_versions.access
	FROM item_versions`

func scanItemVersionRow(row *sql.Row) (*model.ItemVersion, error) {
	var v model.ItemVersion
	var modDate sql.NullTime
	var size, lastHashScan, lastValScan sql.NullInt64
	var fileHash, valError sql.NullString

	err := row.Scan(&v.VersionID, &v.ItemID, &v.FirstScanID, &v.LastScanID, &v.IsDeleted, &v.IsAdded,
		&modDate, &size, &lastHashScan, &fileHash, &lastValScan, &v.Val, &valError, &v.Access)
	if err != nil {
		return nil, err
	}
	applyVersionNullables(&v, modDate, size, lastHashScan, fileHash, lastValScan, valError)
	return &v, nil
}

func scanItemVersionRows(rows *sql.Rows) ([]*model.ItemVersion, error) {
	var out []*model.ItemVersion
	for rows.Next() {
		var v model.ItemVersion
		var modDate sql.NullTime
		var size, lastHashScan, lastValScan sql.NullInt64
		var fileHash, valError sql.NullString

		if err := rows.Scan(&v.VersionID, &v.ItemID, &v.FirstScanID, &v.LastScanID, &v.IsDeleted, &v.IsAdded,
			&modDate, &size, &lastHashScan, &fileHash, &lastValScan, &v.Val, &valError, &v.Access); err != nil {
			return nil, apperr.Store("scan item version", err)
		}
		applyVersionNullables(&v, modDate, size, lastHashScan, fileHash, lastValScan, valError)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func applyVersionNullables(v *model.ItemVersion, modDate sql.NullTime, size, lastHashScan, lastValScan sql.NullInt64, fileHash, valError sql.NullString) {
	if modDate.Valid {
		v.ModDate = &modDate.Time
	}
	if size.Valid {
		v.Size = &size.Int64
	}
	if lastHashScan.Valid {
		v.LastHashScan = &lastHashScan.Int64
	}
	if fileHash.Valid {
		v.FileHash = &fileHash.String
	}
	if lastValScan.Valid {
		v.LastValScan = &lastValScan.Int64
	}
	if valError.Valid {
		v.ValError = &valError.String
	}
}
