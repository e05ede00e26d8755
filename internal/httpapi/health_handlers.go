package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"permitpulse-engine/internal/health"
)

type HealthHandler struct {
	Reporter *health.Reporter

	// Ping is the single fast liveness probe for GET /health. The
	// slower component checks run on the Reporter's timer and are
	// served from cache by Full.
	Ping func(ctx context.Context) error
}

func (h HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	status := health.StatusOK
	code := http.StatusOK
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			status = health.StatusDown
			code = http.StatusServiceUnavailable
		}
	}
	WriteJSON(w, code, map[string]any{"status": status})
}

func (h HealthHandler) Full(w http.ResponseWriter, r *http.Request) {
	report := h.Reporter.Report()
	status := http.StatusOK
	if report.Status == health.StatusDown {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
