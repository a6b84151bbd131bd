package store

import (
	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/undolog"
)

// RollbackScan undoes every item/version mutation scanID has made so
// far and clears the undo log, run when a scan is cancelled and by
// restart recovery for an interrupted scan that has no queue entry to
// resume from. A scan that fails with an error is not rolled back.
func (s *Store) RollbackScan(scanID int64) error {
	txn, err := s.db.Begin()
	if err != nil {
		return apperr.Store("rollback scan", err)
	}
	defer txn.Rollback()

	if err := undolog.Rollback(txn, scanID); err != nil {
		return apperr.Store("rollback scan", err)
	}

	if err := txn.Commit(); err != nil {
		return apperr.Store("rollback scan", err)
	}
	return nil
}

// FinishScan clears the undo log once a scan has committed successfully
// and no further rollback will ever be needed.
func (s *Store) FinishScan() error {
	if err := undolog.Clear(s.db); err != nil {
		return apperr.Store("finish scan", err)
	}
	return nil
}
