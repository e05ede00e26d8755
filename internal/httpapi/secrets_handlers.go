package httpapi

import (
	"net/http"

	"permitpulse-engine/internal/secrets"
)

type SecretsHandler struct{}

func (h SecretsHandler) SetClientSecret(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Secret string `json:"secret"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Secret == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "secret is required")
		return
	}
	if err := secrets.SetClientSecret(in.Secret); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (h SecretsHandler) SetCRMToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Token == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "token is required")
		return
	}
	if err := secrets.SetCRMToken(in.Token); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
