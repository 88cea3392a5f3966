package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/astroulette/backend/internal/auth"
	"github.com/astroulette/backend/internal/core"
	"github.com/astroulette/backend/internal/store"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Detail string `json:"detail"`
}

// statusFor maps service errors onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrAuthExpired):
		return http.StatusUnauthorized, "Token is expired."
	case errors.Is(err, auth.ErrAuthInvalid):
		return http.StatusUnauthorized, "Invalid token."
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "Not allowed."
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrProvisioningFailed):
		return http.StatusServiceUnavailable, "No character could be created right now, try again later."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorBody{Detail: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
