// Package task implements the scheduler and single-slot run queue: it
// materializes Schedule rules into scan_queue entries, starts the one
// eligible scan or compaction at a time, and recovers from an unclean
// shutdown on restart.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/scan"
	"github.com/lyallcooper/fspulse/internal/store"
)

// Manager runs the scheduler loop and owns the single active work slot:
// at most one scan or one compaction runs at a time, and they're
// mutually exclusive with each other.
type Manager struct {
	store  *store.Store
	engine *scan.Engine
	log    zerolog.Logger

	mu       sync.Mutex
	paused   bool
	running  bool // true while a scan or compaction occupies the slot
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewManager(st *store.Store, engine *scan.Engine, log zerolog.Logger) *Manager {
	return &Manager{store: st, engine: engine, log: log}
}

// Start begins the scheduler loop: restart recovery runs once
// immediately, then the loop ticks every minute checking for eligible
// queue entries, matching the teacher scheduler's polling cadence.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.stopChan = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.recoverFromRestart()
	m.materializeSchedules()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()
}

// Stop halts the scheduler loop and waits for any in-flight tick to
// finish; it does not cancel a scan already running.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopChan == nil {
		m.mu.Unlock()
		return
	}
	close(m.stopChan)
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Pause prevents new queue entries from starting; a scan already running
// is unaffected.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume reverses Pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.materializeSchedules()
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	if m.paused || m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	entry, err := m.store.NextEligible(time.Now().UTC())
	if err != nil {
		m.log.Error().Err(err).Msg("failed checking queue")
		return
	}
	if entry == nil {
		return
	}

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	m.startQueued(ctx, entry)
}

// startQueued attaches a scan to entry and launches it. The entry stays
// attached (scan_id set) for the scan's whole run rather than being
// dequeued up front, so restart recovery can find it again; the active
// slot is released by onQueueEntryExit once the scan actually reaches a
// terminal state, not when Start merely returns, since Start launches
// the scan in the background and returns immediately.
func (m *Manager) startQueued(ctx context.Context, entry *model.QueueEntry) {
	queueID := entry.QueueID
	sc, err := m.engine.Start(scan.Options{
		RootID:     entry.RootID,
		HashMode:   entry.HashMode,
		ValMode:    entry.ValMode,
		ScheduleID: entry.ScheduleID,
		QueueID:    &queueID,
		OnExit: func(scanID int64, final model.ScanState) {
			m.onQueueEntryExit(entry, final)
		},
	})
	if err != nil {
		m.log.Error().Err(err).Int64("root_id", entry.RootID).Msg("failed to start queued scan")
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return
	}

	m.log.Info().Int64("scan_id", sc.ScanID).Int64("root_id", entry.RootID).Msg("started queued scan")
}

// onQueueEntryExit runs once a queue-driven scan reaches a terminal
// state. Completed, Stopped, and Error are all handled the same way:
// the active slot frees up, and the entry is dropped (a manual request
// doesn't recur) or rescheduled to its next occurrence (a materialized
// schedule does) — an errored scan gets rescheduled normally rather than
// left wedged in the queue.
func (m *Manager) onQueueEntryExit(entry *model.QueueEntry, final model.ScanState) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	log := m.log.With().Int64("queue_id", entry.QueueID).Str("final_state", final.String()).Logger()

	if entry.Source == model.QueueManual || entry.ScheduleID == nil {
		if err := m.store.DequeueEntry(entry.QueueID); err != nil {
			log.Error().Err(err).Msg("failed to dequeue finished entry")
		}
		return
	}

	schedule, err := m.store.GetSchedule(*entry.ScheduleID)
	if err != nil {
		log.Error().Err(err).Msg("failed loading schedule to reschedule finished entry")
		if err := m.store.DequeueEntry(entry.QueueID); err != nil {
			log.Error().Err(err).Msg("failed to dequeue finished entry")
		}
		return
	}

	next, err := nextRunTime(schedule, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed computing next run time for finished entry")
		if err := m.store.DequeueEntry(entry.QueueID); err != nil {
			log.Error().Err(err).Msg("failed to dequeue finished entry")
		}
		return
	}

	if err := m.store.DetachScanFromQueueEntry(entry.QueueID, next.UTC()); err != nil {
		log.Error().Err(err).Msg("failed rescheduling finished entry")
	}
}

// ScheduleManualScan enqueues a one-off scan request for immediate
// eligibility, rejecting the request if the root already has a pending
// entry.
func (m *Manager) ScheduleManualScan(rootID int64, hashMode model.HashMode, valMode model.ValMode) (*model.QueueEntry, error) {
	if _, err := m.store.GetRoot(rootID); err != nil {
		return nil, err
	}

	queued, err := m.store.HasQueuedForRoot(rootID)
	if err != nil {
		return nil, err
	}
	if queued {
		return nil, apperr.Conflict(fmt.Sprintf("root %d already has a scan queued", rootID))
	}

	return m.store.EnqueueScan(rootID, nil, time.Now().UTC(), hashMode, valMode, model.QueueManual)
}

// ScheduleCompactDatabase runs VACUUM, refusing to start while a scan is
// in the active slot — compaction and scanning are mutually exclusive.
func (m *Manager) ScheduleCompactDatabase() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return apperr.Conflict("a scan or compaction is already in progress")
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
		}()
		if err := m.store.Checkpoint(); err != nil {
			m.log.Error().Err(err).Msg("checkpoint before compact failed")
		}
		if err := m.store.Compact(); err != nil {
			m.log.Error().Err(err).Msg("compact failed")
		}
	}()

	return nil
}

// recoverFromRestart finds scans left active by an unclean shutdown and
// flags them restarted. A scan still attached to its queue entry
// (scan_id set there) is resumable: every phase honors whatever
// sweep_hwm/analysis_hwm it had persisted, so the manager hands it back
// to the engine instead of failing it out. A scan with no queue entry
// can't be resumed this way — every scan this manager starts is
// queue-driven, so this only guards against the undo log being the only
// record of where it got to — and is failed and rolled back instead.
func (m *Manager) recoverFromRestart() {
	active, err := m.store.ActiveScans()
	if err != nil {
		m.log.Error().Err(err).Msg("failed checking for active scans on restart")
		return
	}

	for _, sc := range active {
		if err := m.store.MarkRestarted(sc.ScanID); err != nil {
			m.log.Error().Err(err).Int64("scan_id", sc.ScanID).Msg("failed marking scan restarted")
			continue
		}

		entry, err := m.store.QueueEntryForScan(sc.ScanID)
		if err != nil {
			m.log.Error().Err(err).Int64("scan_id", sc.ScanID).Msg("failed loading queue entry for interrupted scan")
			continue
		}
		if entry == nil {
			m.log.Warn().Int64("scan_id", sc.ScanID).Msg("interrupted scan has no queue entry, cannot resume")
			if err := m.store.RollbackScan(sc.ScanID); err != nil {
				m.log.Error().Err(err).Int64("scan_id", sc.ScanID).Msg("failed rolling back unresumable scan")
			}
			if err := m.store.FailScan(sc.ScanID, "process restarted mid-scan with no queue entry to resume from"); err != nil {
				m.log.Error().Err(err).Int64("scan_id", sc.ScanID).Msg("failed marking unresumable scan as errored")
			}
			continue
		}

		m.mu.Lock()
		m.running = true
		m.mu.Unlock()

		queueID := entry.QueueID
		if err := m.engine.Resume(sc, scan.Options{
			RootID:     sc.RootID,
			HashMode:   sc.HashMode,
			HashAll:    sc.HashAll,
			ValMode:    sc.ValMode,
			ValAll:     sc.ValAll,
			ScheduleID: sc.ScheduleID,
			QueueID:    &queueID,
			OnExit: func(scanID int64, final model.ScanState) {
				m.onQueueEntryExit(entry, final)
			},
		}); err != nil {
			m.log.Error().Err(err).Int64("scan_id", sc.ScanID).Msg("failed resuming interrupted scan")
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			continue
		}

		m.log.Warn().Int64("scan_id", sc.ScanID).Msg("resuming interrupted scan after restart")
	}
}

// materializeSchedules walks every active Schedule and enqueues its next
// occurrence, so the tick loop only ever has to look at the queue. A
// schedule is skipped whenever its root already has any scan_queue entry
// (a manual request or another schedule's occurrence), so a root gets at
// most one queued entry even when several of its schedules are active.
// Next run times are computed against the local clock and stored in UTC.
func (m *Manager) materializeSchedules() {
	schedules, err := m.store.ListActiveSchedules()
	if err != nil {
		m.log.Error().Err(err).Msg("failed listing active schedules")
		return
	}

	now := time.Now()
	for _, sc := range schedules {
		queued, err := m.store.HasQueuedForRoot(sc.RootID)
		if err != nil {
			m.log.Error().Err(err).Int64("schedule_id", sc.ScheduleID).Msg("failed checking queue")
			continue
		}
		if queued {
			continue
		}

		next, err := nextRunTime(sc, now)
		if err != nil {
			m.log.Error().Err(err).Int64("schedule_id", sc.ScheduleID).Msg("failed computing next run time")
			continue
		}

		scheduleID := sc.ScheduleID
		if _, err := m.store.EnqueueScan(sc.RootID, &scheduleID, next.UTC(), sc.HashMode, sc.ValMode, model.QueueScheduled); err != nil {
			m.log.Error().Err(err).Int64("schedule_id", sc.ScheduleID).Msg("failed enqueueing scheduled scan")
		}
	}
}
