package httpapi

import (
	"encoding/json"
	"net/http"
)

// APIError is the one error envelope the REST surface returns. Codes
// are stable strings clients switch on (tenant_not_found, job_conflict,
// reauth_required, ...); messages are for operators and logs.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError sends the envelope with the request id echoed back, so a
// failing call can be matched to its server log line.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}
