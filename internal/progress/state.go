// Package progress models scan progress as a snapshot type any reporter
// implementation can render, and provides the two reporters fspulse
// ships: a terminal reporter for interactive CLI runs and a broadcast
// reporter the API's SSE endpoint subscribes to.
package progress

// ScanStatus is the coarse state of a scan, as presented to a reporter.
type ScanStatus struct {
	Kind    ScanStatusKind
	Message string // only meaningful when Kind == StatusError
}

type ScanStatusKind int

const (
	StatusRunning ScanStatusKind = iota
	StatusCancelling
	StatusStopped
	StatusCompleted
	StatusError
)

// PhaseInfo names the phase currently running and its position in the
// three-phase lifecycle (0 = Scanning, 1 = Sweeping, 2 = Analyzing).
type PhaseInfo struct {
	Name       string
	StageIndex int
}

// ProgressInfo is a completed/total counter pair with its percentage
// precomputed so reporters don't each reimplement the divide-by-zero
// guard.
type ProgressInfo struct {
	Completed  int64
	Total      int64
	Percentage float64
}

func newProgressInfo(completed, total int64) ProgressInfo {
	p := ProgressInfo{Completed: completed, Total: total}
	if total > 0 {
		p.Percentage = float64(completed) / float64(total) * 100
	}
	return p
}

// ScanningProgress counts what Phase 1's traversal has found so far,
// before a total is known.
type ScanningProgress struct {
	FilesScanned       int64
	DirectoriesScanned int64
}

// ThreadOperation is what one Phase 3 worker is doing right now.
type ThreadOperation struct {
	Kind ThreadOperationKind
	File string // set when Kind != OpIdle
}

type ThreadOperationKind int

const (
	OpIdle ThreadOperationKind = iota
	OpHashing
	OpValidating
)

// ThreadState is one worker's current operation, indexed by worker slot.
type ThreadState struct {
	ThreadIndex int
	Operation   ThreadOperation
}

// messageHistoryLimit caps the in-memory message ring buffer; only the
// most recent messages matter to a live viewer.
const messageHistoryLimit = 20

// ScanProgressState is the full snapshot of one scan's progress, built
// up incrementally over the scan's lifetime and cloned out to reporters
// whenever it changes.
type ScanProgressState struct {
	ScanID   *int64
	RootID   *int64
	RootPath string
	Status   ScanStatus

	CurrentPhase    *PhaseInfo
	CompletedPhases []string

	OverallProgress  *ProgressInfo
	ScanningProgress *ScanningProgress

	ThreadStates []ThreadState
	Messages     []string
}

// NewScanProgressState starts a fresh snapshot for a scan that hasn't
// entered a phase yet.
func NewScanProgressState(scanID, rootID *int64, rootPath string) *ScanProgressState {
	return &ScanProgressState{
		ScanID:   scanID,
		RootID:   rootID,
		RootPath: rootPath,
		Status:   ScanStatus{Kind: StatusRunning},
	}
}

// AddMessage appends a log line to the message ring buffer, dropping the
// oldest entry once it exceeds messageHistoryLimit.
func (s *ScanProgressState) AddMessage(msg string) {
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > messageHistoryLimit {
		s.Messages = s.Messages[len(s.Messages)-messageHistoryLimit:]
	}
}

// UpdateThread sets worker threadIndex's current operation, padding
// ThreadStates with idle slots up to threadIndex if it hasn't been seen
// before.
func (s *ScanProgressState) UpdateThread(threadIndex int, op ThreadOperation) {
	for len(s.ThreadStates) <= threadIndex {
		s.ThreadStates = append(s.ThreadStates, ThreadState{
			ThreadIndex: len(s.ThreadStates),
			Operation:   ThreadOperation{Kind: OpIdle},
		})
	}
	s.ThreadStates[threadIndex].Operation = op
}

// IncrementScanning bumps the Phase 1 file or directory counter,
// lazily creating the counter on first use.
func (s *ScanProgressState) IncrementScanning(isDirectory bool) {
	if s.ScanningProgress == nil {
		s.ScanningProgress = &ScanningProgress{}
	}
	if isDirectory {
		s.ScanningProgress.DirectoriesScanned++
	} else {
		s.ScanningProgress.FilesScanned++
	}
}

// SetOverallProgress replaces the completed/total counter shown for the
// current phase.
func (s *ScanProgressState) SetOverallProgress(completed, total int64) {
	p := newProgressInfo(completed, total)
	s.OverallProgress = &p
}

// EnterPhase records the completion of the previous phase (if any) and
// starts the next one.
func (s *ScanProgressState) EnterPhase(name string, stageIndex int) {
	if s.CurrentPhase != nil {
		s.CompletedPhases = append(s.CompletedPhases, s.CurrentPhase.Name)
	}
	s.CurrentPhase = &PhaseInfo{Name: name, StageIndex: stageIndex}
	s.OverallProgress = nil
}

// Clone returns a deep-enough copy safe to hand to a reporter without it
// observing subsequent in-place mutation.
func (s *ScanProgressState) Clone() *ScanProgressState {
	c := *s
	if s.CurrentPhase != nil {
		phase := *s.CurrentPhase
		c.CurrentPhase = &phase
	}
	if s.OverallProgress != nil {
		p := *s.OverallProgress
		c.OverallProgress = &p
	}
	if s.ScanningProgress != nil {
		sp := *s.ScanningProgress
		c.ScanningProgress = &sp
	}
	c.CompletedPhases = append([]string(nil), s.CompletedPhases...)
	c.ThreadStates = append([]ThreadState(nil), s.ThreadStates...)
	c.Messages = append([]string(nil), s.Messages...)
	return &c
}
