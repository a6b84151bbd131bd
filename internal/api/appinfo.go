package api

import "net/http"

type appInfoResponse struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	SchemaVersion  string `json:"schema_version"`
	GitCommit      string `json:"git_commit"`
	BuildTimestamp string `json:"build_timestamp"`
}

func (s *Server) handleAppInfo(w http.ResponseWriter, r *http.Request) {
	schemaVersion, err := s.store.SchemaVersion()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appInfoResponse{
		Name:           "fspulse",
		Version:        s.build.Version,
		SchemaVersion:  schemaVersion,
		GitCommit:      s.build.GitCommit,
		BuildTimestamp: s.build.BuildTimestamp,
	})
}

type databaseStatsResponse struct {
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	WastedBytes int64  `json:"wasted_bytes"`
}

func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, databaseStatsResponse{
		Path:        s.cfg.DBPath.Value,
		SizeBytes:   stats.SizeBytes,
		WastedBytes: stats.FreelistPages * stats.PageSize,
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	if s.shutdownFn != nil {
		go s.shutdownFn()
	}
}
