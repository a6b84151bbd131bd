package api

import (
	"net/http"
	"strconv"

	"github.com/lyallcooper/fspulse/internal/apperr"
)

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// statusFor maps an apperr.Kind to the HTTP status per the error
// taxonomy — config/validation surface 4xx, store errors surface 5xx,
// task conflicts surface 409.
func statusFor(err error) (int, string) {
	appErr, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, err.Error()
	}
	switch appErr.Kind {
	case apperr.KindConfig, apperr.KindValidation:
		return http.StatusBadRequest, appErr.Error()
	case apperr.KindConflict:
		return http.StatusConflict, appErr.Error()
	case apperr.KindNotFound:
		return http.StatusNotFound, appErr.Error()
	case apperr.KindScanFatal, apperr.KindStore:
		return http.StatusInternalServerError, appErr.Error()
	default:
		return http.StatusInternalServerError, appErr.Error()
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	writeError(w, status, message)
}
