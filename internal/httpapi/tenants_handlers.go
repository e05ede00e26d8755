package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
	"permitpulse-engine/internal/secrets"
)

type TenantsHandler struct {
	Deps
}

func (h TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []domain.Tenant{}
	}
	writeJSON(w, tenants)
}

func (h TenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name       string `json:"name"`
		AgencyCode string `json:"agency_code"`
		AutoPull   bool   `json:"auto_pull_enabled"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Name == "" || in.AgencyCode == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "name and agency_code are required")
		return
	}

	t := domain.Tenant{
		ID:              uuid.NewString(),
		Name:            in.Name,
		AgencyCode:      in.AgencyCode,
		Status:          domain.TenantDisconnected,
		AutoPullEnabled: in.AutoPull,
	}
	if err := h.Store.CreateTenant(r.Context(), &t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, t)
}

// ByPath routes /tenants/{id} and its sub-resources.
func (h TenantsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tenants/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_path", "missing tenant id")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "autopull":
		h.post(w, r, id, h.setAutoPull)
	case "oauth/url":
		h.oauthURL(w, r, id)
	case "oauth/callback":
		h.post(w, r, id, h.oauthCallback)
	case "oauth/password":
		h.post(w, r, id, h.oauthPassword)
	case "test":
		h.post(w, r, id, h.testConnection)
	default:
		http.NotFound(w, r)
	}
}

func (h TenantsHandler) post(w http.ResponseWriter, r *http.Request, id string,
	fn func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r, id)
}

func (h TenantsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, t)
}

func (h TenantsHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Name       *string `json:"name"`
		AgencyCode *string `json:"agency_code"`
		AutoPull   *bool   `json:"auto_pull_enabled"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	t, err := h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.AgencyCode != nil {
		t.AgencyCode = *in.AgencyCode
	}
	if in.AutoPull != nil {
		t.AutoPullEnabled = *in.AutoPull
	}
	if t.Name == "" || t.AgencyCode == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "name and agency_code cannot be empty")
		return
	}

	if err := h.Store.UpdateTenant(r.Context(), &t); err != nil {
		writeDomainError(w, r, err)
		return
	}
	t, err = h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, t)
}

func (h TenantsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Store.DeleteTenant(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := secrets.DeleteTokens(id); err != nil {
		// Row is gone; orphaned keyring entries are only cosmetic.
		WriteError(w, r, http.StatusOK, "tokens_not_deleted", err.Error())
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

func (h TenantsHandler) setAutoPull(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	next := time.Time{}
	if in.Enabled {
		next = time.Now()
	}
	if err := h.Store.SetTenantAutoPull(r.Context(), id, in.Enabled, next); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "enabled": in.Enabled})
}

func (h TenantsHandler) oauthURL(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t, err := h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "redirect_uri is required")
		return
	}
	cfg := h.CfgVal.Load().(config.Config)
	writeJSON(w, map[string]string{
		"url": h.AuthorizeURL(cfg, t.AgencyCode, redirectURI, q.Get("state")),
	})
}

func (h TenantsHandler) oauthCallback(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Code == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "code is required")
		return
	}

	t, err := h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	expiresAt, err := h.ExchangeCode(r.Context(), t.ID, t.AgencyCode, in.Code, in.RedirectURI)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.connected(w, r, t.ID, expiresAt)
}

func (h TenantsHandler) oauthPassword(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Username == "" || in.Password == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "username and password are required")
		return
	}

	t, err := h.Store.Tenant(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	expiresAt, err := h.PasswordAuth(r.Context(), t.ID, t.AgencyCode, in.Username, in.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.connected(w, r, t.ID, expiresAt)
}

func (h TenantsHandler) connected(w http.ResponseWriter, r *http.Request, id string, expiresAt time.Time) {
	if err := h.Store.MarkTenantConnected(r.Context(), id, expiresAt); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.Hub.Publish(events.TenantStatus(id, domain.TenantConnected))
	writeJSON(w, map[string]any{"ok": true, "token_expires_at": expiresAt.UTC().Format(time.RFC3339)})
}

func (h TenantsHandler) testConnection(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.TestConnection(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}
