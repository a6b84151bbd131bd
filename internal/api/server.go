// Package api implements fspulse's HTTP surface: stdlib net/http and
// http.ServeMux, matching the teacher's router choice, with the
// maintenance-mode gate sitting in front of every route but health and
// the migration event stream.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyallcooper/fspulse/internal/config"
	"github.com/lyallcooper/fspulse/internal/scan"
	"github.com/lyallcooper/fspulse/internal/store"
	"github.com/lyallcooper/fspulse/internal/task"
)

// BuildInfo carries version metadata the binary was built with, baked in
// via cmd/fspulse at link time. Schema version isn't here: GET
// /api/app-info reads that from the store's applied migrations instead,
// since it describes the database on disk, not the binary.
type BuildInfo struct {
	Version        string
	GitCommit      string
	BuildTimestamp string
}

// Server wires the store, scan engine, and task manager to HTTP routes.
type Server struct {
	store      *store.Store
	engine     *scan.Engine
	manager    *task.Manager
	cfg        *config.Config
	cfgPath    string
	build      BuildInfo
	log        zerolog.Logger
	httpServer *http.Server
	shutdownFn func()
}

type NewServerConfig struct {
	Store      *store.Store
	Engine     *scan.Engine
	Manager    *task.Manager
	Config     *config.Config
	ConfigPath string
	Build      BuildInfo
	Addr       string
	Log        zerolog.Logger
	// Shutdown is invoked by POST /api/server/shutdown after the response
	// is written; the caller supplies the actual process-teardown logic.
	Shutdown func()
}

func NewServer(nc NewServerConfig) *Server {
	s := &Server{
		store:      nc.Store,
		engine:     nc.Engine,
		manager:    nc.Manager,
		cfg:        nc.Config,
		cfgPath:    nc.ConfigPath,
		build:      nc.Build,
		log:        nc.Log,
		shutdownFn: nc.Shutdown,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         nc.Addr,
		Handler:      s.maintenanceGate(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // no timeout: SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /maintenance/events", s.handleMaintenanceEvents)

	mux.HandleFunc("GET /api/app-info", s.handleAppInfo)
	mux.HandleFunc("GET /api/database/stats", s.handleDatabaseStats)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	mux.HandleFunc("POST /api/tasks/scan", s.handlePostScanTask)
	mux.HandleFunc("POST /api/tasks/compact-database", s.handlePostCompactTask)

	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)
	mux.HandleFunc("PATCH /api/schedules/{id}/toggle", s.handleToggleSchedule)

	mux.HandleFunc("PUT /api/alerts/{id}/status", s.handleSetAlertStatus)
	mux.HandleFunc("PUT /api/alerts/bulk-status", s.handleBulkSetAlertStatus)
	mux.HandleFunc("PUT /api/alerts/bulk-status-by-filter", s.handleBulkSetAlertStatusByFilter)
	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)

	mux.HandleFunc("GET /api/items/{id}/size-history", s.handleItemSizeHistory)
	mux.HandleFunc("GET /api/items/{id}/children-counts", s.handleItemChildrenCounts)
	mux.HandleFunc("GET /api/items/{id}/version-history", s.handleItemVersionHistory)
	mux.HandleFunc("GET /api/items/immediate-children", s.handleImmediateChildren)
	mux.HandleFunc("GET /api/items/search", s.handleSearchItems)

	mux.HandleFunc("GET /api/scans/{id}/progress", s.handleScanProgressStream)
	mux.HandleFunc("POST /api/server/shutdown", s.handleShutdown)
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
