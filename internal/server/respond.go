package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/redstack/redmem/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	TraceID string `json:"trace_id,omitempty"`
}

// writeError maps the failure taxonomy onto status codes.
func writeError(w http.ResponseWriter, trace string, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case errors.Is(err, store.ErrValidation):
		status, kind = http.StatusBadRequest, "validation"
	case errors.Is(err, store.ErrUnauthorized):
		status, kind = http.StatusForbidden, "authorization"
	case errors.Is(err, store.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrUnavailable):
		status, kind = http.StatusServiceUnavailable, "dependency_unavailable"
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind, TraceID: trace})
}

func readJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", store.ErrValidation, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", store.ErrValidation)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: parse body: %v", store.ErrValidation, err)
	}
	return nil
}
