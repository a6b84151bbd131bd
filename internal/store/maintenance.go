package store

import (
	"sync"
	"sync/atomic"
)

// MigrationEvent is one line of migration progress, broadcast to any
// subscriber of the maintenance SSE stream.
type MigrationEvent struct {
	Kind    string // "progress", "error", "complete", "failed"
	Message string
}

// ReadyFlag tracks whether the store has finished migrating and fans out
// migration progress to subscribers of the maintenance-mode SSE endpoint.
// Every subscriber, including one that joins after migration finished,
// is handed the full event history by Subscribe.
type ReadyFlag struct {
	ready   atomic.Bool
	mu      sync.Mutex
	history []MigrationEvent
	subs    map[int]chan MigrationEvent
	nextSub int
}

func NewReadyFlag() *ReadyFlag {
	return &ReadyFlag{subs: make(map[int]chan MigrationEvent)}
}

// IsReady reports whether migrations have finished (successfully).
func (r *ReadyFlag) IsReady() bool {
	return r.ready.Load()
}

func (r *ReadyFlag) SetReady() {
	r.broadcast(MigrationEvent{Kind: "complete", Message: "migration complete"})
	r.ready.Store(true)
}

func (r *ReadyFlag) reportProgress(message string) {
	r.broadcast(MigrationEvent{Kind: "progress", Message: message})
}

func (r *ReadyFlag) reportFailed(err error) {
	r.broadcast(MigrationEvent{Kind: "failed", Message: err.Error()})
}

func (r *ReadyFlag) broadcast(ev MigrationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, ev)
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// A lagging subscriber misses live events but still gets the
			// full history replayed on next connect attempt; migration
			// progress is not worth blocking on a slow reader for.
		}
	}
}

// Subscribe registers a channel that receives every event from this
// point forward, after first replaying history so a late subscriber
// sees what it missed. The returned func unregisters it.
func (r *ReadyFlag) Subscribe() (<-chan MigrationEvent, []MigrationEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan MigrationEvent, 16)
	r.subs[id] = ch
	historyCopy := make([]MigrationEvent, len(r.history))
	copy(historyCopy, r.history)

	return ch, historyCopy, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if ch, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}
