package api

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/RouteBox/internal/faults"
)

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case faults.NotFound:
		status = http.StatusNotFound
	case faults.InvalidTransition, faults.ConcurrentModification:
		status = http.StatusConflict
	case faults.InfeasibleInput, faults.MissingProof:
		status = http.StatusUnprocessableEntity
	case faults.DependencyUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Kind:      string(kind),
		Retryable: kind.Retryable(),
	})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
