package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
	"permitpulse-engine/internal/store"
)

type JobsHandler struct {
	Store  *store.Store
	Hub    *events.Hub
	CfgVal *atomic.Value
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	jobs, err := h.Store.ListJobs(r.Context(), q.Get("tenant_id"), domain.JobStatus(q.Get("status")), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}

func (h JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TenantID string           `json:"tenant_id"`
		Type     domain.JobType   `json:"job_type"`
		Params   domain.JobParams `json:"parameters"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.TenantID == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_field", "tenant_id is required")
		return
	}
	if !in.Type.Valid() {
		WriteError(w, r, http.StatusBadRequest, "invalid_job_type", "job_type must be initial_pull, incremental_pull or aggregation_rebuild")
		return
	}
	if _, err := h.Store.Tenant(r.Context(), in.TenantID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	job := &domain.Job{
		ID:         uuid.NewString(),
		TenantID:   in.TenantID,
		Type:       in.Type,
		Params:     in.Params,
		MaxRetries: cfg.Worker.MaxRetries,
	}
	if err := h.Store.CreateJob(r.Context(), job); err != nil {
		writeDomainError(w, r, err)
		return
	}

	created, err := h.Store.Job(r.Context(), job.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.Hub.Publish(events.JobEvent(events.TypeJobQueued, &created))
	writeJSON(w, created)
}

// ByPath routes /jobs/{id} and /jobs/{id}/cancel.
func (h JobsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_path", "missing job id")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case sub == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h JobsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.Store.Job(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, job)
}

func (h JobsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Store.DeleteJob(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

// cancel marks the job cancelled; a running worker notices at its next
// progress checkpoint, so cancellation is acknowledged before it lands.
func (h JobsHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Store.CancelJob(r.Context(), id, time.Now()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	job, err := h.Store.Job(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.Hub.Publish(events.JobEvent(events.TypeJobCancelled, &job))
	writeJSON(w, job)
}
