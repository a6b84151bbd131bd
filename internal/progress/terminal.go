package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// TerminalReporter renders progress to an io.Writer (normally stdout) for
// an interactive scan/serve run. It redraws a single status line rather
// than scrolling, the way a CLI progress bar does.
type TerminalReporter struct {
	out io.Writer
	mu  sync.Mutex
}

func NewTerminalReporter(out io.Writer) *TerminalReporter {
	return &TerminalReporter{out: out}
}

func (t *TerminalReporter) SectionStart(name string) Section {
	t.mu.Lock()
	fmt.Fprintf(t.out, "== %s ==\n", name)
	t.mu.Unlock()
	return &terminalSection{reporter: t, name: name}
}

func (t *TerminalReporter) Update(state *ScanProgressState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	phase := "idle"
	if state.CurrentPhase != nil {
		phase = state.CurrentPhase.Name
	}

	switch {
	case state.OverallProgress != nil:
		p := state.OverallProgress
		fmt.Fprintf(t.out, "\r%-12s %s / %s (%.1f%%)", phase,
			humanize.Comma(p.Completed), humanize.Comma(p.Total), p.Percentage)
	case state.ScanningProgress != nil:
		sp := state.ScanningProgress
		fmt.Fprintf(t.out, "\r%-12s %s files, %s directories", phase,
			humanize.Comma(sp.FilesScanned), humanize.Comma(sp.DirectoriesScanned))
	}
}

func (t *TerminalReporter) Println(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n%s\n", msg)
}

func (t *TerminalReporter) Clone() Reporter {
	return t
}

type terminalSection struct {
	reporter *TerminalReporter
	name     string

	mu      sync.Mutex
	total   int64
	pos     int64
	ticking bool
	stop    chan struct{}
}

func (s *terminalSection) SetLength(total int64) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

func (s *terminalSection) SetPosition(completed int64) {
	s.mu.Lock()
	s.pos = completed
	s.mu.Unlock()
	s.render()
}

func (s *terminalSection) Inc(delta int64) {
	s.mu.Lock()
	s.pos += delta
	s.mu.Unlock()
	s.render()
}

func (s *terminalSection) render() {
	s.mu.Lock()
	pos, total := s.pos, s.total
	s.mu.Unlock()

	pct := 0.0
	if total > 0 {
		pct = float64(pos) / float64(total) * 100
	}
	s.reporter.mu.Lock()
	fmt.Fprintf(s.reporter.out, "\r%-12s %s / %s (%.1f%%)", s.name,
		humanize.Comma(pos), humanize.Comma(total), pct)
	s.reporter.mu.Unlock()
}

func (s *terminalSection) EnableSteadyTick() {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		return
	}
	s.ticking = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.render()
			case <-stop:
				return
			}
		}
	}()
}

func (s *terminalSection) DisableSteadyTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticking {
		close(s.stop)
		s.ticking = false
	}
}

func (s *terminalSection) Finish() {
	s.DisableSteadyTick()
	s.render()
	s.reporter.mu.Lock()
	fmt.Fprintln(s.reporter.out)
	s.reporter.mu.Unlock()
}

func (s *terminalSection) FinishAndClear() {
	s.DisableSteadyTick()
	s.reporter.mu.Lock()
	fmt.Fprint(s.reporter.out, "\r\033[K")
	s.reporter.mu.Unlock()
}
