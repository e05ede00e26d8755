package domain

import "time"

type JobType string

const (
	JobInitialPull        JobType = "initial_pull"
	JobIncrementalPull    JobType = "incremental_pull"
	JobAggregationRebuild JobType = "aggregation_rebuild"
)

func (t JobType) Valid() bool {
	switch t {
	case JobInitialPull, JobIncrementalPull, JobAggregationRebuild:
		return true
	}
	return false
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can never run again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobParams is the caller-supplied knob set stored on the job row.
// Zero values fall back to config defaults at execution time.
type JobParams struct {
	Years      int    `json:"years,omitempty"`
	DaysBack   int    `json:"days_back,omitempty"`
	PermitType string `json:"permit_type,omitempty"`
}

// PeriodCompleted is the value stored in the per-period completion map.
const PeriodCompleted = "completed"

type Job struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	Type     JobType   `json:"job_type"`
	Status   JobStatus `json:"status"`
	Params   JobParams `json:"parameters"`

	// Progress counters.
	RecordsPulled     int     `json:"records_pulled"`
	RecordsSaved      int     `json:"records_saved"`
	PropertiesCreated int     `json:"properties_created"`
	PropertiesUpdated int     `json:"properties_updated"`
	LeadsCreated      int     `json:"leads_created"`
	CurrentPeriod     int     `json:"current_period,omitempty"`
	ProgressPercent   int     `json:"progress_percent"`
	ElapsedSeconds    int     `json:"elapsed_seconds"`
	RecordsPerSecond  float64 `json:"records_per_second"`
	ETA               string  `json:"estimated_completion_at,omitempty"`

	// PeriodsDone maps "2005" -> PeriodCompleted. It is the resume
	// checkpoint: it only ever grows across retries of the same job.
	PeriodsDone map[string]string `json:"periods_done"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
