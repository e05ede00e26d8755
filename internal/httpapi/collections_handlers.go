package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"permitpulse-engine/internal/crm"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/store"
)

type PermitsHandler struct {
	Store *store.Store
}

func (h PermitsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	permits, err := h.Store.ListPermits(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if permits == nil {
		permits = []domain.Permit{}
	}
	writeJSON(w, permits)
}

type PropertiesHandler struct {
	Store *store.Store
}

func (h PropertiesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}

	f := store.PropertyFilter{Tier: q.Get("tier")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v := q.Get("qualified"); v != "" {
		b := v == "true" || v == "1"
		f.Qualified = &b
	}

	props, err := h.Store.ListProperties(r.Context(), tenantID, f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if props == nil {
		props = []domain.Property{}
	}
	writeJSON(w, props)
}

func (h PropertiesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}
	counts, err := h.Store.CountProperties(r.Context(), tenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, counts)
}

type LeadsHandler struct {
	Store     *store.Store
	SyncLeads func(ctx context.Context, tenantID string, limit int) (crm.SyncResult, error)
}

func (h LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}

	f := store.LeadFilter{SyncStatus: q.Get("sync_status"), Tier: q.Get("tier")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	leads, err := h.Store.ListLeads(r.Context(), tenantID, f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	writeJSON(w, leads)
}

// ByPath routes /leads/{id}/notes. The bare /leads collection and
// /leads/sync are registered directly on the mux.
func (h LeadsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/leads/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "notes" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in struct {
		Notes string `json:"notes"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.Store.UpdateLeadNotes(r.Context(), id, in.Notes); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

func (h LeadsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TenantID string `json:"tenant_id"`
		Limit    int    `json:"limit"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.TenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}
	if h.SyncLeads == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "crm_disabled", "crm sync is not configured")
		return
	}

	res, err := h.SyncLeads(r.Context(), in.TenantID, in.Limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res)
}
