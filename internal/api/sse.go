package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// handleMaintenanceEvents streams migration progress/error/complete/failed
// events for the maintenance page's EventSource, replaying history first
// so a client connecting mid-migration still sees prior progress lines.
func (s *Server) handleMaintenanceEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, history, unsubscribe := s.store.Ready.Subscribe()
	defer unsubscribe()

	for _, ev := range history {
		writeSSEEvent(w, flusher, ev.Kind, ev.Message)
	}
	if s.store.Ready.IsReady() {
		writeSSEEvent(w, flusher, "complete", "ready")
		return
	}

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSEEvent(w, flusher, ev.Kind, ev.Message)
			if ev.Kind == "complete" || ev.Kind == "failed" {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleScanProgressStream streams a running scan's progress snapshots
// to the caller, closing when the scan's broadcast reporter closes.
func (s *Server) handleScanProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	scanID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan id")
		return
	}

	reporter, ok := s.engine.Reporter(scanID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active scan with that id")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if latest := reporter.Latest(); latest != nil {
		writeSSEEvent(w, flusher, "progress", latest)
	}

	_, ch := reporter.Subscribe()
	for {
		select {
		case state, open := <-ch:
			if !open {
				return
			}
			writeSSEEvent(w, flusher, "progress", state)
		case <-r.Context().Done():
			return
		}
	}
}
