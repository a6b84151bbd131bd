package progress

import (
	"sync"

	"github.com/google/uuid"
)

// subscriber wraps a channel with safe close handling so a slow or gone
// reader never causes a double-close panic.
type subscriber struct {
	ch        chan *ScanProgressState
	closeOnce sync.Once
	closed    bool
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		sub.closed = true
		close(sub.ch)
	})
}

func (sub *subscriber) send(state *ScanProgressState) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.ch <- state:
		return true
	default:
		return false
	}
}

// BroadcastReporter is the Reporter implementation the API layer's SSE
// endpoint subscribes to: every Update fans out to every live
// subscriber, and a subscriber that can't keep up just misses frames
// rather than blocking the scan.
type BroadcastReporter struct {
	subMu       sync.RWMutex
	subscribers map[uuid.UUID]*subscriber

	mu     sync.Mutex
	latest *ScanProgressState
}

func NewBroadcastReporter() *BroadcastReporter {
	return &BroadcastReporter{subscribers: make(map[uuid.UUID]*subscriber)}
}

// Subscribe registers a new listener and returns its channel and the
// handle needed to unsubscribe later.
func (b *BroadcastReporter) Subscribe() (uuid.UUID, <-chan *ScanProgressState) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := uuid.New()
	sub := &subscriber{ch: make(chan *ScanProgressState, 16)}
	b.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *BroadcastReporter) Unsubscribe(id uuid.UUID) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		sub.close()
	}
}

// Latest returns the most recently broadcast state, or nil if the scan
// hasn't reported anything yet — used to answer a "no active scan" poll
// without waiting on a subscription.
func (b *BroadcastReporter) Latest() *ScanProgressState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

func (b *BroadcastReporter) broadcast(state *ScanProgressState) {
	b.mu.Lock()
	b.latest = state
	b.mu.Unlock()

	b.subMu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(state)
	}
}

// CloseAll closes every subscriber channel, called when a scan ends so
// SSE handlers can terminate their response instead of hanging.
func (b *BroadcastReporter) CloseAll() {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
}

func (b *BroadcastReporter) SectionStart(name string) Section {
	return &broadcastSection{reporter: b}
}

func (b *BroadcastReporter) Update(state *ScanProgressState) {
	b.broadcast(state.Clone())
}

func (b *BroadcastReporter) Println(msg string) {
	if latest := b.Latest(); latest != nil {
		clone := latest.Clone()
		clone.AddMessage(msg)
		b.broadcast(clone)
	}
}

func (b *BroadcastReporter) Clone() Reporter {
	return b
}

// broadcastSection is a no-op Section: the broadcast reporter only cares
// about full-state Update calls, not per-section tick animation.
type broadcastSection struct {
	reporter *BroadcastReporter
}

func (broadcastSection) SetLength(int64)    {}
func (broadcastSection) SetPosition(int64)  {}
func (broadcastSection) Inc(int64)          {}
func (broadcastSection) EnableSteadyTick()  {}
func (broadcastSection) DisableSteadyTick() {}
func (broadcastSection) Finish()            {}
func (broadcastSection) FinishAndClear()    {}
