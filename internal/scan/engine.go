// Package scan implements the three-phase scan lifecycle: Scanning
// (traversal), Sweeping (deletion detection), and Analyzing (hashing and
// validation), each built on top of internal/store's temporal model.
package scan

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/alert"
	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
	"github.com/lyallcooper/fspulse/internal/progress"
	"github.com/lyallcooper/fspulse/internal/store"
	"github.com/lyallcooper/fspulse/internal/validator"
)

// Engine runs scans against roots. It tracks the cancel function and
// reporter for every scan currently in flight so the API and task
// manager layers can cancel a running scan or subscribe to its progress.
type Engine struct {
	store      *store.Store
	validators *validator.Registry
	detector   *alert.Detector
	log        zerolog.Logger

	mu       sync.Mutex
	active   map[int64]context.CancelFunc
	reporter map[int64]*progress.BroadcastReporter
}

// Options configures one scan request.
type Options struct {
	RootID     int64
	HashMode   model.HashMode
	HashAll    bool
	ValMode    model.ValMode
	ValAll     bool
	ScheduleID *int64
	Workers    int

	// QueueID is the scan_queue entry this scan is running for, if any.
	// When set, the Sweep and Analyze phases persist their high-water
	// marks against it as they batch through work, and Start attaches
	// the new scan's id to it so restart recovery can find it again.
	QueueID *int64

	// OnExit, if set, is called once after the scan reaches a terminal
	// state (Completed, Stopped, or Error), after the reporter's final
	// update. The Task Manager uses it to release the active slot and
	// perform queue bookkeeping without the Engine needing to know
	// anything about scheduling.
	OnExit func(scanID int64, final model.ScanState)
}

func NewEngine(st *store.Store, validators *validator.Registry, log zerolog.Logger) *Engine {
	return &Engine{
		store:      st,
		validators: validators,
		detector:   alert.NewDetector(st),
		log:        log,
		active:     make(map[int64]context.CancelFunc),
		reporter:   make(map[int64]*progress.BroadcastReporter),
	}
}

// Start creates a scan row and runs it in the background, returning
// immediately with the created scan. Callers get progress via Reporter.
func (e *Engine) Start(opts Options) (*model.Scan, error) {
	root, err := e.store.GetRoot(opts.RootID)
	if err != nil {
		return nil, err
	}

	sc, err := e.store.CreateScan(opts.RootID, opts.HashMode, opts.HashAll, opts.ValMode, opts.ValAll, opts.ScheduleID)
	if err != nil {
		return nil, err
	}

	if opts.QueueID != nil {
		if err := e.store.AttachScanToQueueEntry(*opts.QueueID, sc.ScanID); err != nil {
			return nil, err
		}
	}

	e.launch(sc, root, opts)
	return sc, nil
}

// Resume re-enters a scan an unclean shutdown left attached to its
// queue entry in a non-terminal state. Every phase honors whatever
// sweep_hwm/analysis_hwm the interrupted run had persisted, so the
// resumed run skips what it already committed instead of redoing an
// entire phase — Phase 1 is the one exception, always redone in full,
// since a directory re-walk is naturally idempotent and carries no
// persisted hwm of its own. The caller (Task Manager restart recovery)
// is responsible for having already marked sc restarted.
func (e *Engine) Resume(sc *model.Scan, opts Options) error {
	root, err := e.store.GetRoot(opts.RootID)
	if err != nil {
		return err
	}
	e.launch(sc, root, opts)
	return nil
}

func (e *Engine) launch(sc *model.Scan, root *model.Root, opts Options) {
	ctx, cancel := context.WithCancel(context.Background())
	reporter := progress.NewBroadcastReporter()

	e.mu.Lock()
	e.active[sc.ScanID] = cancel
	e.reporter[sc.ScanID] = reporter
	e.mu.Unlock()

	scanLog := e.log.With().Int64("scan_id", sc.ScanID).Int64("root_id", opts.RootID).Logger()

	go e.run(ctx, sc, root, opts, reporter, scanLog)
}

// Reporter returns the broadcast reporter for an in-flight scan, if any.
func (e *Engine) Reporter(scanID int64) (*progress.BroadcastReporter, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.reporter[scanID]
	return r, ok
}

// Cancel requests cooperative cancellation of a running scan. The scan
// itself decides when it's safe to stop — at the next batch boundary —
// so this returns before the scan has necessarily finished unwinding.
func (e *Engine) Cancel(scanID int64) error {
	e.mu.Lock()
	cancel, ok := e.active[scanID]
	e.mu.Unlock()
	if !ok {
		return apperr.NotFound(fmt.Sprintf("scan %d is not running", scanID))
	}
	cancel()
	return nil
}

func (e *Engine) finish(scanID int64) {
	e.mu.Lock()
	delete(e.active, scanID)
	reporter := e.reporter[scanID]
	delete(e.reporter, scanID)
	e.mu.Unlock()
	if reporter != nil {
		reporter.CloseAll()
	}
}

func (e *Engine) run(ctx context.Context, sc *model.Scan, root *model.Root, opts Options, reporter *progress.BroadcastReporter, log zerolog.Logger) {
	defer e.finish(sc.ScanID)

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	state := progress.NewScanProgressState(&sc.ScanID, &root.RootID, root.RootPath)
	reporter.Update(state)

	var sweepFrom, analysisFrom int64
	if opts.QueueID != nil {
		entry, err := e.store.QueueEntryForScan(sc.ScanID)
		if err != nil {
			e.fail(sc, state, reporter, opts, err, log)
			return
		}
		if entry != nil {
			if entry.SweepHWM != nil {
				sweepFrom = *entry.SweepHWM
			}
			if entry.AnalysisHWM != nil {
				analysisFrom = *entry.AnalysisHWM
			}
		}
	}

	state.EnterPhase("Scanning", 0)
	reporter.Update(state)
	if _, err := e.traverse(ctx, sc, root, state, reporter, log); err != nil {
		e.fail(sc, state, reporter, opts, err, log)
		return
	}

	if ctx.Err() != nil {
		e.stop(sc, state, reporter, opts, log)
		return
	}

	state.EnterPhase("Sweeping", 1)
	reporter.Update(state)
	if err := e.sweep(ctx, sc, root, opts.QueueID, sweepFrom, state, reporter, log); err != nil {
		e.fail(sc, state, reporter, opts, err, log)
		return
	}

	if ctx.Err() != nil {
		e.stop(sc, state, reporter, opts, log)
		return
	}

	state.EnterPhase("Analyzing", 2)
	reporter.Update(state)
	if err := e.analyze(ctx, sc, root, opts, workers, analysisFrom, state, reporter, log); err != nil {
		e.fail(sc, state, reporter, opts, err, log)
		return
	}

	if ctx.Err() != nil {
		e.stop(sc, state, reporter, opts, log)
		return
	}

	if err := e.store.FinishScan(); err != nil {
		log.Error().Err(err).Msg("failed clearing undo log")
	}

	counts, err := e.store.ScanSummary(root.RootID, sc.ScanID)
	if err != nil {
		log.Error().Err(err).Msg("failed computing scan summary")
	}
	if err := e.store.CompleteScan(sc.ScanID, model.ScanCompleted, counts); err != nil {
		log.Error().Err(err).Msg("failed completing scan")
	}

	state.Status = progress.ScanStatus{Kind: progress.StatusCompleted}
	reporter.Update(state)
	log.Info().
		Int64("files", counts.FileCount).
		Int64("adds", counts.AddCount).
		Int64("deletes", counts.DeleteCount).
		Int64("modifies", counts.ModifyCount).
		Int64("alerts", counts.AlertCount).
		Msg("scan completed")

	e.exit(sc.ScanID, model.ScanCompleted, opts)
}

func (e *Engine) stop(sc *model.Scan, state *progress.ScanProgressState, reporter *progress.BroadcastReporter, opts Options, log zerolog.Logger) {
	if err := e.store.RollbackScan(sc.ScanID); err != nil {
		log.Error().Err(err).Msg("rollback after cancellation failed")
	}
	if err := e.store.SetScanState(sc.ScanID, model.ScanStopped); err != nil {
		log.Error().Err(err).Msg("failed marking scan stopped")
	}
	state.Status = progress.ScanStatus{Kind: progress.StatusStopped}
	reporter.Update(state)
	log.Info().Msg("scan cancelled")
	e.exit(sc.ScanID, model.ScanStopped, opts)
}

// fail transitions a scan to Error without rolling back. Per the fatal
// error contract, partial item_versions/changes evidence from whatever
// the scan completed before failing is kept, not discarded — only the
// cancellation path in stop() rolls back.
func (e *Engine) fail(sc *model.Scan, state *progress.ScanProgressState, reporter *progress.BroadcastReporter, opts Options, cause error, log zerolog.Logger) {
	if err := e.store.FailScan(sc.ScanID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed recording scan failure")
	}
	state.Status = progress.ScanStatus{Kind: progress.StatusError, Message: cause.Error()}
	reporter.Update(state)
	log.Error().Err(cause).Msg("scan failed")
	e.exit(sc.ScanID, model.ScanError, opts)
}

func (e *Engine) exit(scanID int64, final model.ScanState, opts Options) {
	if opts.OnExit != nil {
		opts.OnExit(scanID, final)
	}
}

// canceled reports whether ctx has been cancelled. Phases 1 and 2 check
// it at batch boundaries so cancellation has bounded latency; Phase 3's
// workers also check it before each item.
func canceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

const batchSize = 200
