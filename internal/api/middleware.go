package api

import (
	"fmt"
	"net/http"
)

const maintenancePage = `<!DOCTYPE html>
<html><head><title>fspulse — migrating</title></head>
<body>
<h1>Database migration in progress</h1>
<p id="status">Waiting for migration to complete...</p>
<script>
const es = new EventSource("/maintenance/events");
es.addEventListener("progress", e => { document.getElementById("status").textContent = e.data; });
es.addEventListener("error", e => { document.getElementById("status").textContent = "Error: " + e.data; });
es.addEventListener("complete", () => { location.reload(); });
es.addEventListener("failed", e => { document.getElementById("status").textContent = "Migration failed: " + e.data; });
</script>
</body></html>`

// maintenanceGate blocks every request but /health and
// /maintenance/events until the store's migrations have finished,
// matching the teacher's SSE-backed readiness pattern generalized from
// scan-progress events to migration-progress events.
func (s *Server) maintenanceGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/maintenance/events" {
			next.ServeHTTP(w, r)
			return
		}
		if s.store.Ready.IsReady() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, maintenancePage)
	})
}
