package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"permitpulse-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// writeDomainError maps the domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		WriteError(w, r, http.StatusNotFound, "tenant_not_found", err.Error())
	case errors.Is(err, domain.ErrJobNotFound):
		WriteError(w, r, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, domain.ErrLeadNotFound):
		WriteError(w, r, http.StatusNotFound, "lead_not_found", err.Error())
	case errors.Is(err, domain.ErrJobConflict):
		WriteError(w, r, http.StatusConflict, "job_conflict", err.Error())
	case errors.Is(err, domain.ErrReauthRequired):
		WriteError(w, r, http.StatusUnauthorized, "reauth_required", err.Error())
	default:
		WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
