package api

import (
	"encoding/json"
	"net/http"

	"github.com/lyallcooper/fspulse/internal/model"
)

type scheduleScanRequest struct {
	RootID       int64  `json:"root_id"`
	HashMode     string `json:"hash_mode"`
	ValidateMode string `json:"validate_mode"`
}

func (s *Server) handlePostScanTask(w http.ResponseWriter, r *http.Request) {
	var req scheduleScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hashMode, ok := model.ParseHashMode(req.HashMode)
	if req.HashMode != "" && !ok {
		writeError(w, http.StatusBadRequest, "hash_mode must be one of None, New, All")
		return
	}
	valMode, ok := model.ParseValMode(req.ValidateMode)
	if req.ValidateMode != "" && !ok {
		writeError(w, http.StatusBadRequest, "validate_mode must be one of None, New, All")
		return
	}

	if _, err := s.manager.ScheduleManualScan(req.RootID, hashMode, valMode); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePostCompactTask(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ScheduleCompactDatabase(); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
