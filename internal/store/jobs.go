package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitpulse-engine/internal/domain"
)

const jobCols = `id, tenant_id, job_type, status, parameters,
records_pulled, records_saved, properties_created, properties_updated, leads_created,
current_period, progress_percent, elapsed_seconds, records_per_second, eta,
periods_done, retry_count, max_retries, error_message, error_kind,
created_at, started_at, completed_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (domain.Job, error) {
	var j domain.Job
	var params, periods, startedAt, completedAt, createdAt, updatedAt string
	err := row.Scan(&j.ID, &j.TenantID, &j.Type, &j.Status, &params,
		&j.RecordsPulled, &j.RecordsSaved, &j.PropertiesCreated, &j.PropertiesUpdated, &j.LeadsCreated,
		&j.CurrentPeriod, &j.ProgressPercent, &j.ElapsedSeconds, &j.RecordsPerSecond, &j.ETA,
		&periods, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.ErrorKind,
		&createdAt, &startedAt, &completedAt, &updatedAt)
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal([]byte(params), &j.Params); err != nil {
		return j, fmt.Errorf("job %s: bad parameters json: %w", j.ID, err)
	}
	j.PeriodsDone = map[string]string{}
	if err := json.Unmarshal([]byte(periods), &j.PeriodsDone); err != nil {
		return j, fmt.Errorf("job %s: bad periods_done json: %w", j.ID, err)
	}
	if ts := parseTime(createdAt); ts != nil {
		j.CreatedAt = *ts
	}
	j.StartedAt = parseTime(startedAt)
	j.CompletedAt = parseTime(completedAt)
	if ts := parseTime(updatedAt); ts != nil {
		j.UpdatedAt = *ts
	}
	return j, nil
}

// CreateJob inserts a pending job. At most one non-terminal job may exist
// per tenant; a second enqueue returns ErrJobConflict.
func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM jobs WHERE tenant_id = ? AND status IN ('pending','running');`,
		j.TenantID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrJobConflict
	}

	params, err := json.Marshal(j.Params)
	if err != nil {
		return err
	}
	if j.PeriodsDone == nil {
		j.PeriodsDone = map[string]string{}
	}
	periods, err := json.Marshal(j.PeriodsDone)
	if err != nil {
		return err
	}

	now := rfc3339(time.Now())
	_, err = tx.ExecContext(ctx, `
INSERT INTO jobs (id, tenant_id, job_type, status, parameters, periods_done, max_retries, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		j.ID, j.TenantID, j.Type, domain.JobPending, string(params), string(periods),
		j.MaxRetries, now, now)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return tx.Commit()
}

// ClaimOldestPending atomically flips the oldest pending job to running
// and returns it. A nil job with nil error means the queue is empty.
func (s *Store) ClaimOldestPending(ctx context.Context, now time.Time) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+jobCols+` FROM jobs WHERE status = 'pending' ORDER BY created_at, id LIMIT 1;`)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ts := rfc3339(now)
	_, err = tx.ExecContext(ctx, `
UPDATE jobs SET status = 'running', started_at = ?, updated_at = ? WHERE id = ?;`,
		ts, ts, j.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.Status = domain.JobRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return &j, nil
}

func (s *Store) Job(ctx context.Context, id string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = ?;`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return j, domain.ErrJobNotFound
	}
	return j, err
}

// JobStatus is the cheap status-only read the worker polls at progress
// checkpoints to notice a cancel request.
func (s *Store) JobStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	var st domain.JobStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?;`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrJobNotFound
	}
	return st, err
}

func (s *Store) ListJobs(ctx context.Context, tenantID string, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + jobCols + ` FROM jobs`
	var where []string
	args := []any{}
	if tenantID != "" {
		where = append(where, `tenant_id = ?`)
		args = append(args, tenantID)
	}
	if status != "" {
		where = append(where, `status = ?`)
		args = append(args, status)
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJobProgress flushes the worker's progress counters. It touches
// only running jobs so a concurrent cancel is never overwritten.
func (s *Store) UpdateJobProgress(ctx context.Context, j *domain.Job) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE jobs SET
  records_pulled = ?, records_saved = ?,
  properties_created = ?, properties_updated = ?, leads_created = ?,
  current_period = ?, progress_percent = ?, elapsed_seconds = ?,
  records_per_second = ?, eta = ?, updated_at = ?
WHERE id = ? AND status = 'running';`,
		j.RecordsPulled, j.RecordsSaved,
		j.PropertiesCreated, j.PropertiesUpdated, j.LeadsCreated,
		j.CurrentPeriod, j.ProgressPercent, j.ElapsedSeconds,
		j.RecordsPerSecond, j.ETA, rfc3339(time.Now()),
		j.ID)
	return err
}

// MarkPeriodDone records one calendar period as fully ingested. The map
// only grows, so a retried job can skip straight past it.
func (s *Store) MarkPeriodDone(ctx context.Context, jobID, period string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT periods_done FROM jobs WHERE id = ?;`, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return err
	}

	periods := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &periods); err != nil {
		return fmt.Errorf("job %s: bad periods_done json: %w", jobID, err)
	}
	periods[period] = domain.PeriodCompleted
	buf, err := json.Marshal(periods)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE jobs SET periods_done = ?, updated_at = ? WHERE id = ?;`,
		string(buf), rfc3339(time.Now()), jobID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CompleteJob(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'completed', progress_percent = 100, error_message = '', error_kind = '',
  completed_at = ?, updated_at = ?
WHERE id = ? AND status = 'running';`,
		rfc3339(now), rfc3339(now), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrJobNotFound)
}

func (s *Store) FailJob(ctx context.Context, id, message, kind string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'failed', error_message = ?, error_kind = ?, completed_at = ?, updated_at = ?
WHERE id = ? AND status = 'running';`,
		message, kind, rfc3339(now), rfc3339(now), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrJobNotFound)
}

// RequeueJob puts a failed attempt back on the queue with the retry count
// bumped. periods_done is left untouched so completed periods stay skipped.
func (s *Store) RequeueJob(ctx context.Context, id, message, kind string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'pending', retry_count = retry_count + 1,
  error_message = ?, error_kind = ?, started_at = '', updated_at = ?
WHERE id = ? AND status = 'running';`,
		message, kind, rfc3339(now), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrJobNotFound)
}

// CancelJob marks a pending or running job cancelled. The worker notices
// a running cancellation at its next progress checkpoint.
func (s *Store) CancelJob(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'cancelled', completed_at = ?, updated_at = ?
WHERE id = ? AND status IN ('pending','running');`,
		rfc3339(now), rfc3339(now), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already terminal; disambiguate for the API.
		if _, err := s.Job(ctx, id); err != nil {
			return err
		}
		return domain.ErrJobConflict
	}
	return nil
}

// ResetStaleRunning flips running jobs whose last heartbeat is older than
// cutoff back to pending. Run at startup to recover from a crash.
func (s *Store) ResetStaleRunning(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET status = 'pending', started_at = '', updated_at = ?
WHERE status = 'running' AND updated_at < ?;`,
		rfc3339(time.Now()), rfc3339(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var st domain.JobStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?;`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if !st.Terminal() {
		return domain.ErrJobConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, id); err != nil {
		return err
	}
	return tx.Commit()
}
