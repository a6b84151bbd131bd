package api

import (
	"encoding/json"
	"net/http"

	"github.com/lyallcooper/fspulse/internal/model"
)

type alertResponse struct {
	AlertID      int64   `json:"alert_id"`
	AlertType    string  `json:"alert_type"`
	AlertStatus  string  `json:"alert_status"`
	ScanID       int64   `json:"scan_id"`
	ItemID       int64   `json:"item_id"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    *string `json:"updated_at,omitempty"`
	PrevHashScan *int64  `json:"prev_hash_scan,omitempty"`
	HashOld      *string `json:"hash_old,omitempty"`
	HashNew      *string `json:"hash_new,omitempty"`
	ValError     *string `json:"val_error,omitempty"`
}

func toAlertResponse(a *model.Alert) alertResponse {
	resp := alertResponse{
		AlertID:      a.AlertID,
		AlertType:    a.AlertType.String(),
		AlertStatus:  a.AlertStatus.String(),
		ScanID:       a.ScanID,
		ItemID:       a.ItemID,
		CreatedAt:    a.CreatedAt.Format(timeFormat),
		PrevHashScan: a.PrevHashScan,
		HashOld:      a.HashOld,
		HashNew:      a.HashNew,
		ValError:     a.ValError,
	}
	if a.UpdatedAt != nil {
		s := a.UpdatedAt.Format(timeFormat)
		resp.UpdatedAt = &s
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	var status *model.AlertStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := model.ParseAlertStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "status must be one of Open, Flagged, Dismissed")
			return
		}
		status = &parsed
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	alerts, err := s.store.ListAlerts(status, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type alertStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetAlertStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	var req alertStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := model.ParseAlertStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be one of Open, Flagged, Dismissed")
		return
	}
	if err := s.store.SetAlertStatus(id, status); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type bulkStatusRequest struct {
	AlertIDs []int64 `json:"alert_ids"`
	Status   string  `json:"status"`
}

func (s *Server) handleBulkSetAlertStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := model.ParseAlertStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be one of Open, Flagged, Dismissed")
		return
	}
	updated, err := s.store.BulkSetStatus(req.AlertIDs, status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

type bulkStatusByFilterRequest struct {
	FilterType   string `json:"filter_type"`
	FilterStatus string `json:"filter_status"`
	Status       string `json:"status"`
}

func (s *Server) handleBulkSetAlertStatusByFilter(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusByFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := model.ParseAlertStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be one of Open, Flagged, Dismissed")
		return
	}

	var filterType *model.AlertType
	if req.FilterType != "" {
		parsed, ok := model.ParseAlertType(req.FilterType)
		if !ok {
			writeError(w, http.StatusBadRequest, "filter_type must be one of SuspiciousHash, InvalidItem")
			return
		}
		filterType = &parsed
	}

	var filterStatus *model.AlertStatus
	if req.FilterStatus != "" {
		parsed, ok := model.ParseAlertStatus(req.FilterStatus)
		if !ok {
			writeError(w, http.StatusBadRequest, "filter_status must be one of Open, Flagged, Dismissed")
			return
		}
		filterStatus = &parsed
	}

	updated, err := s.store.BulkSetStatusByFilter(filterType, filterStatus, status)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
