package handler

import (
	"encoding/json"
	"net/http"
)

// Error codes returned by the ops endpoints.
const (
	codeDependencyUnavailable = "dependency_unavailable"
)

// opsError is the body of a failed ops request. Dependency names the
// component that failed, when there is one.
type opsError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Dependency string `json:"dependency,omitempty"`
}

func writeUnavailable(w http.ResponseWriter, dep, reason string) {
	w.Header().Set("Retry-After", "5")
	writeJSON(w, http.StatusServiceUnavailable, opsError{
		Code:       codeDependencyUnavailable,
		Message:    dep + " unavailable: " + reason,
		Dependency: dep,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
