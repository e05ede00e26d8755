package events

import (
	"encoding/json"
	"time"

	"permitpulse-engine/internal/domain"
)

// Event types fanned out over the SSE stream.
const (
	TypeJobQueued     = "job.queued"
	TypeJobStarted    = "job.started"
	TypeJobProgress   = "job.progress"
	TypeJobCompleted  = "job.completed"
	TypeJobFailed     = "job.failed"
	TypeJobRetried    = "job.retried"
	TypeJobCancelled  = "job.cancelled"
	TypeTenantStatus  = "tenant.status"
	TypeLeadSynced    = "lead.synced"
	TypeLeadSyncError = "lead.sync_error"
)

type Event struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Make(typ string, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{Type: typ, At: time.Now().UTC(), Data: raw}
	b, _ := json.Marshal(e)
	return string(b)
}

// JobEvent publishes a snapshot of the job's visible state.
func JobEvent(typ string, j *domain.Job) string {
	return Make(typ, j)
}

// ProgressData is the slim payload for the high-frequency progress event;
// the full job row would be wasteful at one event per flush.
type ProgressData struct {
	JobID            string  `json:"job_id"`
	TenantID         string  `json:"tenant_id"`
	RecordsPulled    int     `json:"records_pulled"`
	RecordsSaved     int     `json:"records_saved"`
	CurrentPeriod    int     `json:"current_period,omitempty"`
	ProgressPercent  int     `json:"progress_percent"`
	RecordsPerSecond float64 `json:"records_per_second"`
	ETA              string  `json:"estimated_completion_at,omitempty"`
}

func Progress(j *domain.Job) string {
	return Make(TypeJobProgress, ProgressData{
		JobID:            j.ID,
		TenantID:         j.TenantID,
		RecordsPulled:    j.RecordsPulled,
		RecordsSaved:     j.RecordsSaved,
		CurrentPeriod:    j.CurrentPeriod,
		ProgressPercent:  j.ProgressPercent,
		RecordsPerSecond: j.RecordsPerSecond,
		ETA:              j.ETA,
	})
}

func TenantStatus(tenantID, status string) string {
	return Make(TypeTenantStatus, map[string]string{
		"tenant_id": tenantID,
		"status":    status,
	})
}
