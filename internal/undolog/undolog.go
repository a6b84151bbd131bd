// Package undolog implements the transient per-scan rollback journal: a
// record of every live-version mutation a scan has made, so a cancelled
// or fatally-errored scan can be undone back to the state before it
// started rather than leaving the tree half-updated.
package undolog

import (
	"database/sql"
	"fmt"

	"github.com/lyallcooper/fspulse/internal/model"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Log records v's pre-update last_scan_id/last_hash_scan/last_val_scan
// before an in-place update, so Rollback can restore them. scanID is the
// scan currently running the update. Versions created by that same scan
// (first_scan_id == scanID, i.e. the row didn't exist before this scan
// started) are not logged: a rollback deletes those rows outright
// instead of restoring a prior state that never existed for them. A
// version created by an earlier scan and now being extended for the
// first time (first_scan_id < scanID) must still be logged, or a
// rollback of this scan leaves its last_scan_id permanently advanced.
func Log(tx execer, scanID int64, v *model.ItemVersion) error {
	if v.FirstScanID == scanID {
		return nil
	}
	_, err := tx.Exec(
		`INSERT INTO scan_undo_log (version_id, old_last_scan_id, old_last_hash_scan, old_last_val_scan)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(version_id) DO NOTHING`,
		v.VersionID, v.LastScanID, v.LastHashScan, v.LastValScan,
	)
	if err != nil {
		return fmt.Errorf("log undo entry for version %d: %w", v.VersionID, err)
	}
	return nil
}

// Rollback undoes every mutation a scan has made so far, in the order
// that makes each step well-defined given the one before it:
//
//  1. Restore every logged version's last_scan_id/last_hash_scan/last_val_scan,
//     undoing in-place extensions.
//  2. Delete items that this scan created and that have no surviving
//     version after step 3 will run — expressed here as items whose
//     only version was first_scan_id = scanID (items this scan both
//     created and is about to unwind).
//  3. Delete every version row this scan created outright
//     (first_scan_id = scanID).
//  4. Clear the undo log.
//
// Steps must run in this order: step 2's item deletion depends on step
// 3 not having run yet (it needs to see which items would otherwise be
// left versionless), and step 4 must run last so a second rollback
// attempt after a partial failure doesn't replay stale entries.
func Rollback(tx execer, scanID int64) error {
	if _, err := tx.Exec(`
		UPDATE item_versions
		SET last_scan_id = (SELECT old_last_scan_id FROM scan_undo_log WHERE scan_undo_log.version_id = item_versions.version_id),
		    last_hash_scan = (SELECT old_last_hash_scan FROM scan_undo_log WHERE scan_undo_log.version_id = item_versions.version_id),
		    last_val_scan = (SELECT old_last_val_scan FROM scan_undo_log WHERE scan_undo_log.version_id = item_versions.version_id)
		WHERE version_id IN (SELECT version_id FROM scan_undo_log)
	`); err != nil {
		return fmt.Errorf("restore logged versions: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM items
		WHERE EXISTS (SELECT 1 FROM item_versions WHERE item_versions.item_id = items.item_id AND item_versions.first_scan_id = ?)
		  AND NOT EXISTS (SELECT 1 FROM item_versions WHERE item_versions.item_id = items.item_id AND item_versions.first_scan_id != ?)
	`, scanID, scanID); err != nil {
		return fmt.Errorf("delete orphaned items: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM item_versions WHERE first_scan_id = ?", scanID); err != nil {
		return fmt.Errorf("delete versions created by scan %d: %w", scanID, err)
	}

	if _, err := tx.Exec("DELETE FROM scan_undo_log"); err != nil {
		return fmt.Errorf("clear undo log: %w", err)
	}

	return nil
}

// Clear truncates the undo log, called after a scan completes
// successfully and no rollback is needed.
func Clear(tx execer) error {
	if _, err := tx.Exec("DELETE FROM scan_undo_log"); err != nil {
		return fmt.Errorf("clear undo log: %w", err)
	}
	return nil
}
