package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/fspulse/internal/config"
	"github.com/lyallcooper/fspulse/internal/scan"
	"github.com/lyallcooper/fspulse/internal/store"
	"github.com/lyallcooper/fspulse/internal/task"
	"github.com/lyallcooper/fspulse/internal/validator"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := scan.NewEngine(st, validator.NewRegistry(), zerolog.Nop())
	manager := task.NewManager(st, engine, zerolog.Nop())

	cfg := &config.Config{
		Port:     config.Setting[int]{Value: 8080, Source: config.SourceDefault},
		DBPath:   config.Setting[string]{Value: ":memory:", Source: config.SourceDefault},
		LogLevel: config.Setting[string]{Value: "info", Source: config.SourceDefault},
		Analysis: config.AnalysisConfig{
			Threads: config.Setting[int]{Value: 4, Source: config.SourceDefault, EnvVar: "FSPULSE_ANALYSIS_THREADS"},
		},
	}

	s := NewServer(NewServerConfig{
		Store:      st,
		Engine:     engine,
		Manager:    manager,
		Config:     cfg,
		ConfigPath: "",
		Build:      BuildInfo{Version: "test"},
		Addr:       "127.0.0.1:0",
		Log:        zerolog.Nop(),
	})
	return s, st
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointBypassesMaintenanceGate(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAppInfoReturnsBuildMetadata(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/app-info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp appInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "test", resp.Version)
}

func TestGetSettingsReportsEnvOverrideAsNotEditable(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Analysis.Threads.Source = config.SourceEnv

	rec := doRequest(t, s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp settingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Analysis.Threads.Editable)
	require.Equal(t, "environment", resp.Analysis.Threads.Source)
}

func TestPutSettingsRejectsWhenEnvOverridden(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Analysis.Threads.Source = config.SourceEnv

	rec := doRequest(t, s, http.MethodPut, "/api/settings", map[string]any{
		"analysis": map[string]any{"threads": 8},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestScheduleCRUDRoundTrip(t *testing.T) {
	s, st := newTestServer(t)
	root, err := st.CreateRoot("/tmp/watched")
	require.NoError(t, err)

	createRec := doRequest(t, s, http.MethodPost, "/api/schedules", map[string]any{
		"root_id":       root.RootID,
		"name":          "nightly",
		"kind":          "Daily",
		"time_of_day":   "02:00",
		"hash_mode":     "New",
		"validate_mode": "New",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created scheduleResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	require.True(t, created.Enabled)
	require.Equal(t, "Daily", created.Kind)

	listRec := doRequest(t, s, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var list []scheduleResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	toggleRec := doRequest(t, s, http.MethodPatch, "/api/schedules/"+itoa(created.ScheduleID)+"/toggle", nil)
	require.Equal(t, http.StatusOK, toggleRec.Code)
	var toggled scheduleResponse
	require.NoError(t, json.Unmarshal(toggleRec.Body.Bytes(), &toggled))
	require.False(t, toggled.Enabled)

	deleteRec := doRequest(t, s, http.MethodDelete, "/api/schedules/"+itoa(created.ScheduleID), nil)
	require.Equal(t, http.StatusNoContent, deleteRec.Code)
}

func TestScheduleManualScanEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	root, err := st.CreateRoot("/tmp/watched")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/scan", map[string]any{
		"root_id":       root.RootID,
		"hash_mode":     "New",
		"validate_mode": "None",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	dup := doRequest(t, s, http.MethodPost, "/api/tasks/scan", map[string]any{
		"root_id": root.RootID,
	})
	require.Equal(t, http.StatusConflict, dup.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
