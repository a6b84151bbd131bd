package api

import (
	"encoding/json"
	"net/http"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/model"
)

type scheduleResponse struct {
	ScheduleID   int64  `json:"schedule_id"`
	RootID       int64  `json:"root_id"`
	RootPath     string `json:"root_path"`
	Enabled      bool   `json:"enabled"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	TimeOfDay    string `json:"time_of_day,omitempty"`
	DaysOfWeek   []int  `json:"days_of_week,omitempty"`
	DayOfMonth   *int   `json:"day_of_month,omitempty"`
	IntervalVal  *int   `json:"interval_val,omitempty"`
	IntervalUnit string `json:"interval_unit,omitempty"`
	HashMode     string `json:"hash_mode"`
	ValMode      string `json:"validate_mode"`
	Deleted      bool   `json:"deleted"`
}

func (s *Server) toScheduleResponse(sc *model.Schedule) scheduleResponse {
	resp := scheduleResponse{
		ScheduleID:  sc.ScheduleID,
		RootID:      sc.RootID,
		Enabled:     sc.Enabled,
		Name:        sc.Name,
		Kind:        sc.Kind.String(),
		DaysOfWeek:  sc.DaysOfWeek,
		DayOfMonth:  sc.DayOfMonth,
		IntervalVal: sc.IntervalVal,
		HashMode:    sc.HashMode.String(),
		ValMode:     sc.ValMode.String(),
		Deleted:     sc.DeletedAt != nil,
	}
	if sc.TimeOfDay != nil {
		resp.TimeOfDay = *sc.TimeOfDay
	}
	if sc.IntervalUnit != nil {
		resp.IntervalUnit = sc.IntervalUnit.String()
	}
	if root, err := s.store.GetRoot(sc.RootID); err == nil {
		resp.RootPath = root.RootPath
	}
	return resp
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]scheduleResponse, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, s.toScheduleResponse(sc))
	}
	writeJSON(w, http.StatusOK, out)
}

type scheduleRequest struct {
	RootID       int64  `json:"root_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	TimeOfDay    string `json:"time_of_day"`
	DaysOfWeek   []int  `json:"days_of_week"`
	DayOfMonth   *int   `json:"day_of_month"`
	IntervalVal  *int   `json:"interval_val"`
	IntervalUnit string `json:"interval_unit"`
	HashMode     string `json:"hash_mode"`
	ValidateMode string `json:"validate_mode"`
}

func (req *scheduleRequest) toModel() (*model.Schedule, error) {
	kind, ok := model.ParseScheduleKind(req.Kind)
	if !ok {
		return nil, apperr.Validation("kind must be one of Daily, Weekly, Interval, Monthly")
	}
	hashMode, ok := model.ParseHashMode(req.HashMode)
	if req.HashMode != "" && !ok {
		return nil, apperr.Validation("hash_mode must be one of None, New, All")
	}
	valMode, ok := model.ParseValMode(req.ValidateMode)
	if req.ValidateMode != "" && !ok {
		return nil, apperr.Validation("validate_mode must be one of None, New, All")
	}

	sc := &model.Schedule{
		RootID:      req.RootID,
		Enabled:     true,
		Name:        req.Name,
		Kind:        kind,
		DaysOfWeek:  req.DaysOfWeek,
		DayOfMonth:  req.DayOfMonth,
		IntervalVal: req.IntervalVal,
		HashMode:    hashMode,
		ValMode:     valMode,
	}
	if req.TimeOfDay != "" {
		sc.TimeOfDay = &req.TimeOfDay
	}
	if req.IntervalUnit != "" {
		unit, ok := model.ParseIntervalUnit(req.IntervalUnit)
		if !ok {
			return nil, apperr.Validation("interval_unit must be one of Minutes, Hours, Days, Weeks")
		}
		sc.IntervalUnit = &unit
	}
	return sc, nil
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sc, err := req.toModel()
	if err != nil {
		writeAppError(w, err)
		return
	}
	created, err := s.store.CreateSchedule(sc)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toScheduleResponse(created))
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	existing, err := s.store.GetSchedule(id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sc, err := req.toModel()
	if err != nil {
		writeAppError(w, err)
		return
	}
	sc.ScheduleID = existing.ScheduleID
	sc.RootID = existing.RootID
	sc.Enabled = existing.Enabled

	updated, err := s.store.UpdateSchedule(sc)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toScheduleResponse(updated))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if err := s.store.DeleteSchedule(id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	existing, err := s.store.GetSchedule(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.store.SetScheduleEnabled(id, !existing.Enabled); err != nil {
		writeAppError(w, err)
		return
	}
	updated, err := s.store.GetSchedule(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toScheduleResponse(updated))
}
