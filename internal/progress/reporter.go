package progress

// Reporter is the capability interface the Scan Engine drives; it knows
// nothing about where progress ends up (a terminal, an SSE stream), only
// that something is listening.
type Reporter interface {
	// SectionStart announces the beginning of a named unit of work
	// (typically a phase) and returns a handle used to report progress
	// within it.
	SectionStart(name string) Section

	// Update replaces the full progress snapshot. Called whenever
	// anything in the ScanProgressState changes.
	Update(state *ScanProgressState)

	// Println emits a standalone message outside of section progress.
	Println(msg string)

	// Clone returns a reporter for a single worker of a fan-out stage
	// (Phase 3's worker pool); implementations that aggregate per-worker
	// state use this to know how many workers are live.
	Clone() Reporter
}

// Section is a single phase's progress handle.
type Section interface {
	// SetLength declares the total amount of work in this section, once
	// known (Phase 1 doesn't know its total until it finishes).
	SetLength(total int64)

	// SetPosition sets the absolute amount of work completed so far.
	SetPosition(completed int64)

	// Inc advances the position by delta.
	Inc(delta int64)

	// EnableSteadyTick/DisableSteadyTick toggle a reporter's background
	// redraw timer, for implementations (the terminal reporter) that
	// animate a spinner between explicit updates.
	EnableSteadyTick()
	DisableSteadyTick()

	// Finish marks the section complete and leaves its final state
	// visible.
	Finish()

	// FinishAndClear marks the section complete and removes it from
	// view, for implementations where a finished progress bar would
	// otherwise clutter the display.
	FinishAndClear()
}
