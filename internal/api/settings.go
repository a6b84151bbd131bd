package api

import (
	"encoding/json"
	"net/http"

	"github.com/lyallcooper/fspulse/internal/apperr"
	"github.com/lyallcooper/fspulse/internal/config"
)

type configSetting[T any] struct {
	ConfigValue    T      `json:"config_value"`
	EffectiveValue T      `json:"effective_value"`
	Source         string `json:"source"`
	EnvVar         string `json:"env_var"`
	Editable       bool   `json:"editable"`
}

type analysisSettings struct {
	Threads configSetting[int] `json:"threads"`
}

type settingsResponse struct {
	Analysis analysisSettings `json:"analysis"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	threads := s.cfg.Analysis.Threads

	configValue := threads.Value
	if threads.Source == config.SourceEnv {
		fileValue, err := config.FileThreads(s.cfgPath)
		if err != nil {
			writeAppError(w, err)
			return
		}
		configValue = fileValue
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Analysis: analysisSettings{
			Threads: configSetting[int]{
				ConfigValue:    configValue,
				EffectiveValue: threads.Value,
				Source:         string(threads.Source),
				EnvVar:         threads.EnvVar,
				Editable:       threads.Editable(),
			},
		},
	})
}

type settingsUpdateRequest struct {
	Analysis *struct {
		Threads *int `json:"threads"`
	} `json:"analysis"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Analysis == nil || req.Analysis.Threads == nil {
		writeError(w, http.StatusBadRequest, "no valid settings provided to update")
		return
	}

	if !s.cfg.Analysis.Threads.Editable() {
		writeError(w, http.StatusConflict,
			"cannot update analysis.threads: overridden by environment variable "+s.cfg.Analysis.Threads.EnvVar)
		return
	}

	if err := config.UpdateAnalysisThreads(s.cfgPath, *req.Analysis.Threads); err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindValidation {
			writeError(w, http.StatusBadRequest, appErr.Error())
			return
		}
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "configuration updated successfully; restart required for changes to take effect",
	})
}
