package store

import (
	"database/sql"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// SizeHistoryEntry is one point on an item's size-over-time series.
type SizeHistoryEntry struct {
	ScanID int64
	Size   int64
}

// SizeHistory returns every version size the item has had from fromScanID
// (inclusive) up to toScanID (inclusive), oldest first.
func (s *Store) SizeHistory(itemID, fromScanID, toScanID int64) ([]SizeHistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT first_scan_id, size FROM item_versions
		WHERE item_id = ? AND size IS NOT NULL AND first_scan_id >= ? AND first_scan_id <= ?
		ORDER BY first_scan_id ASC`,
		itemID, fromScanID, toScanID,
	)
	if err != nil {
		return nil, apperr.Store("size history", err)
	}
	defer rows.Close()

	var out []SizeHistoryEntry
	for rows.Next() {
		var e SizeHistoryEntry
		if err := rows.Scan(&e.ScanID, &e.Size); err != nil {
			return nil, apperr.Store("size history", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChildrenCounts reports the live, non-deleted file/directory counts one
// level below parentPath, as of scanID.
type ChildrenCounts struct {
	FileCount      int64
	DirectoryCount int64
}

func (s *Store) ChildrenCounts(rootID int64, parentPath string, scanID int64) (ChildrenCounts, error) {
	var counts ChildrenCounts
	err := s.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE items.item_type = ?),
			COUNT(*) FILTER (WHERE items.item_type = ?)
		FROM items
		JOIN item_versions ON item_versions.item_id = items.item_id
		WHERE items.root_id = ?
		  AND items.parent_path = ?
		  AND item_versions.first_scan_id <= ? AND item_versions.last_scan_id >= ?
		  AND item_versions.is_deleted = 0`,
		model.ItemFile, model.ItemDirectory, rootID, parentPath, scanID, scanID,
	).Scan(&counts.FileCount, &counts.DirectoryCount)
	if err != nil {
		return counts, apperr.Store("children counts", err)
	}
	return counts, nil
}

// VersionHistory returns up to limit versions of an item, most recent
// first. If beforeScanID is non-nil, only versions with first_scan_id <
// *beforeScanID are returned (keyset pagination); otherwise scanID (if
// non-nil) anchors the page at the version live at that scan.
func (s *Store) VersionHistory(itemID int64, scanID, beforeScanID *int64, limit int) ([]*model.ItemVersion, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	query := itemVersionSelect + " WHERE item_id = ?"
	args := []any{itemID}

	switch {
	case beforeScanID != nil:
		query += " AND first_scan_id < ?"
		args = append(args, *beforeScanID)
	case scanID != nil:
		query += " AND first_scan_id <= ?"
		args = append(args, *scanID)
	}
	query += " ORDER BY first_scan_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Store("version history", err)
	}
	defer rows.Close()
	return scanItemVersionRows(rows)
}

// ItemAtScan pairs an item with the version (if any) live at a given
// scan, used for listings that must include deleted entries.
type ItemAtScan struct {
	Item    *model.Item
	Version *model.ItemVersion
}

// ImmediateChildren lists every item directly under parentPath (one path
// segment below), including ones deleted as of scanID.
func (s *Store) ImmediateChildren(rootID int64, parentPath string, scanID int64) ([]ItemAtScan, error) {
	rows, err := s.db.Query(`
		SELECT items.item_id, items.root_id, items.item_path, items.parent_path, items.item_name, items.item_type
		FROM items
		WHERE items.root_id = ? AND items.parent_path = ?
		ORDER BY items.item_path COLLATE NATURALPATH ASC`,
		rootID, parentPath,
	)
	if err != nil {
		return nil, apperr.Store("immediate children", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ItemID, &it.RootID, &it.ItemPath, &it.ParentPath, &it.ItemName, &it.ItemType); err != nil {
			return nil, apperr.Store("immediate children", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("immediate children", err)
	}

	out := make([]ItemAtScan, 0, len(items))
	for _, it := range items {
		row := s.db.QueryRow(itemVersionSelect+" WHERE item_id = ? AND first_scan_id <= ? ORDER BY first_scan_id DESC LIMIT 1", it.ItemID, scanID)
		v, err := scanItemVersionRow(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, apperr.Store("immediate children", err)
		}
		out = append(out, ItemAtScan{Item: it, Version: v})
	}
	return out, nil
}

// SearchItems finds items under rootID whose path matches a case-
// insensitive substring query, live as of scanID.
func (s *Store) SearchItems(rootID int64, scanID int64, query string) ([]ItemAtScan, error) {
	rows, err := s.db.Query(`
		SELECT items.item_id, items.root_id, items.item_path, items.parent_path, items.item_name, items.item_type
		FROM items
		WHERE items.root_id = ? AND items.item_path LIKE '%' || ? || '%' COLLATE NATURALPATH
		ORDER BY items.item_path COLLATE NATURALPATH ASC
		LIMIT 200`,
		rootID, query,
	)
	if err != nil {
		return nil, apperr.Store("search items", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ItemID, &it.RootID, &it.ItemPath, &it.ParentPath, &it.ItemName, &it.ItemType); err != nil {
			return nil, apperr.Store("search items", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("search items", err)
	}

	out := make([]ItemAtScan, 0, len(items))
	for _, it := range items {
		row := s.db.QueryRow(itemVersionSelect+" WHERE item_id = ? AND first_scan_id <= ? AND last_scan_id >= ? AND is_deleted = 0 ORDER BY first_scan_id DESC LIMIT 1", it.ItemID, scanID, scanID)
		v, err := scanItemVersionRow(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, apperr.Store("search items", err)
		}
		out = append(out, ItemAtScan{Item: it, Version: v})
	}
	return out, nil
}
