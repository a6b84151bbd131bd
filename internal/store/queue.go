package store

import (
	"database/sql"
	"time"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

// EnqueueScan adds an entry to the scan queue, either a manual request
// (scheduleID nil) or a materialized occurrence of a schedule.
func (s *Store) EnqueueScan(rootID int64, scheduleID *int64, nextScanTime time.Time, hashMode model.HashMode, valMode model.ValMode, source model.QueueSource) (*model.QueueEntry, error) {
	res, err := s.db.Exec(`
		INSERT INTO scan_queue (root_id, schedule_id, next_scan_time, hash_mode, val_mode, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rootID, scheduleID, nextScanTime, hashMode, valMode, source,
	)
	if err != nil {
		return nil, apperr.Store("enqueue scan", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Store("enqueue scan", err)
	}
	return &model.QueueEntry{
		QueueID: id, RootID: rootID, ScheduleID: scheduleID, NextScanTime: nextScanTime,
		HashMode: hashMode, ValMode: valMode, Source: source,
	}, nil
}

// NextEligible returns the earliest queue entry whose next_scan_time has
// arrived, or nil if none is due yet. The Task Manager's single active
// slot means it only ever needs the one entry at the head. Ties on
// next_scan_time (routine at second resolution) are broken by manual
// requests first (model.QueueManual sorts below QueueScheduled), then by
// queue_id, so a scheduled entry due at the same instant can't starve a
// manual one enqueued earlier.
func (s *Store) NextEligible(now time.Time) (*model.QueueEntry, error) {
	row := s.db.QueryRow(queueSelect+" WHERE next_scan_time <= ? ORDER BY next_scan_time ASC, source ASC, queue_id ASC LIMIT 1", now)
	e, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("next eligible", err)
	}
	return e, nil
}

// ListQueue returns the full pending queue, soonest first.
func (s *Store) ListQueue() ([]*model.QueueEntry, error) {
	rows, err := s.db.Query(queueSelect + " ORDER BY next_scan_time ASC")
	if err != nil {
		return nil, apperr.Store("list queue", err)
	}
	defer rows.Close()

	var out []*model.QueueEntry
	for rows.Next() {
		e, err := scanQueueRows(rows)
		if err != nil {
			return nil, apperr.Store("list queue", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DequeueEntry removes a queue entry. Called on engine exit, whatever the
// final state, for a manual entry, and for a scheduled entry whose
// schedule or next run time can't be loaded. Any other scheduled entry
// is rescheduled in place through DetachScanFromQueueEntry instead.
func (s *Store) DequeueEntry(queueID int64) error {
	_, err := s.db.Exec("DELETE FROM scan_queue WHERE queue_id = ?", queueID)
	if err != nil {
		return apperr.Store("dequeue entry", err)
	}
	return nil
}

// AttachScanToQueueEntry records which scan a queue entry started. The
// entry stays attached, scan_id set, for the scan's entire run: that's
// what lets restart recovery find it again and resume rather than
// treating every interrupted scan as unrecoverable.
func (s *Store) AttachScanToQueueEntry(queueID, scanID int64) error {
	_, err := s.db.Exec("UPDATE scan_queue SET scan_id = ? WHERE queue_id = ?", scanID, queueID)
	if err != nil {
		return apperr.Store("attach scan to queue entry", err)
	}
	return nil
}

// DetachScanFromQueueEntry clears scan_id and resets both hwms, run on
// engine exit for a scheduled entry immediately before it's rescheduled
// via next_scan_time, so a later occurrence never inherits a finished
// scan's progress markers.
func (s *Store) DetachScanFromQueueEntry(queueID int64, nextScanTime time.Time) error {
	_, err := s.db.Exec(
		"UPDATE scan_queue SET scan_id = NULL, sweep_hwm = NULL, analysis_hwm = NULL, next_scan_time = ? WHERE queue_id = ?",
		nextScanTime, queueID,
	)
	if err != nil {
		return apperr.Store("detach scan from queue entry", err)
	}
	return nil
}

// SetSweepHWM persists the largest item_id the Sweep phase has
// committed a Delete transition for, so a resumed sweep can skip
// everything up to and including it.
func (s *Store) SetSweepHWM(queueID, itemID int64) error {
	_, err := s.db.Exec("UPDATE scan_queue SET sweep_hwm = ? WHERE queue_id = ?", itemID, queueID)
	if err != nil {
		return apperr.Store("set sweep hwm", err)
	}
	return nil
}

// SetAnalysisHWM persists the largest item_id whose hash/validate batch
// the Analyze phase has committed.
func (s *Store) SetAnalysisHWM(queueID, itemID int64) error {
	_, err := s.db.Exec("UPDATE scan_queue SET analysis_hwm = ? WHERE queue_id = ?", itemID, queueID)
	if err != nil {
		return apperr.Store("set analysis hwm", err)
	}
	return nil
}

// QueueEntryForScan returns the queue entry currently attached to
// scanID, or nil if the scan isn't queue-driven (never happens in
// practice — every scan the Task Manager starts goes through the
// queue — but Engine.run doesn't assume it).
func (s *Store) QueueEntryForScan(scanID int64) (*model.QueueEntry, error) {
	row := s.db.QueryRow(queueSelect+" WHERE scan_id = ?", scanID)
	e, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("queue entry for scan", err)
	}
	return e, nil
}

// HasQueuedForRoot reports whether rootID already has a pending queue
// entry, used to enforce one-scan-per-root exclusivity when scheduling.
func (s *Store) HasQueuedForRoot(rootID int64) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM scan_queue WHERE root_id = ?)", rootID).Scan(&exists)
	if err != nil {
		return false, apperr.Store("has queued for root", err)
	}
	return exists == 1, nil
}

const queueSelect = `
	SELECT queue_id, root_id, schedule_id, scan_id, next_scan_time, hash_mode, val_mode, source, sweep_hwm, analysis_hwm
	FROM scan_queue`

func scanQueueRow(row *sql.Row) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var scheduleID, scanID, sweepHWM, analysisHWM sql.NullInt64

	if err := row.Scan(&e.QueueID, &e.RootID, &scheduleID, &scanID, &e.NextScanTime, &e.HashMode, &e.ValMode, &e.Source, &sweepHWM, &analysisHWM); err != nil {
		return nil, err
	}
	applyQueueNullables(&e, scheduleID, scanID, sweepHWM, analysisHWM)
	return &e, nil
}

func scanQueueRows(rows *sql.Rows) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var scheduleID, scanID, sweepHWM, analysisHWM sql.NullInt64

	if err := rows.Scan(&e.QueueID, &e.RootID, &scheduleID, &scanID, &e.NextScanTime, &e.HashMode, &e.ValMode, &e.Source, &sweepHWM, &analysisHWM); err != nil {
		return nil, err
	}
	applyQueueNullables(&e, scheduleID, scanID, sweepHWM, analysisHWM)
	return &e, nil
}

func applyQueueNullables(e *model.QueueEntry, scheduleID, scanID, sweepHWM, analysisHWM sql.NullInt64) {
	if scheduleID.Valid {
		e.ScheduleID = &scheduleID.Int64
	}
	if scanID.Valid {
		e.ScanID = &scanID.Int64
	}
	if sweepHWM.Valid {
		e.SweepHWM = &sweepHWM.Int64
	}
	if analysisHWM.Valid {
		e.AnalysisHWM = &analysisHWM.Int64
	}
}
