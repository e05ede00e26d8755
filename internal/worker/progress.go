package worker

import (
	"context"
	"fmt"
	"time"

	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
)

// tracker batches progress writes: one flush per everyRecords records or
// per everyInterval of wall time, whichever comes first. Each flush also
// re-reads the job's status so an external cancel lands within one
// flush interval.
type tracker struct {
	store Store
	hub   *events.Hub
	job   *domain.Job
	now   func() time.Time

	everyRecords  int
	everyInterval time.Duration

	totalPeriods int
	donePeriods  int

	started    time.Time
	lastFlush  time.Time
	sinceFlush int
}

func newTracker(store Store, hub *events.Hub, job *domain.Job, now func() time.Time,
	everyRecords int, everyInterval time.Duration, totalPeriods int) *tracker {
	t := &tracker{
		store:         store,
		hub:           hub,
		job:           job,
		now:           now,
		everyRecords:  everyRecords,
		everyInterval: everyInterval,
		totalPeriods:  totalPeriods,
		donePeriods:   len(job.PeriodsDone),
	}
	t.started = now()
	t.lastFlush = t.started
	return t
}

// record accounts one pulled upstream record and flushes when a
// checkpoint is due. The ErrJobCancelled return is the cooperative
// cancellation path out of the pull loop.
func (t *tracker) record(ctx context.Context) error {
	t.job.RecordsPulled++
	t.sinceFlush++
	if t.sinceFlush >= t.everyRecords || t.now().Sub(t.lastFlush) >= t.everyInterval {
		return t.flush(ctx)
	}
	return nil
}

// periodDone stamps one period complete, persisting the checkpoint
// before the progress row so a crash between the two writes can only
// lose progress cosmetics, never replay state.
func (t *tracker) periodDone(ctx context.Context, period string) error {
	if err := t.store.MarkPeriodDone(ctx, t.job.ID, period); err != nil {
		return fmt.Errorf("mark period %s done: %w", period, err)
	}
	t.job.PeriodsDone[period] = domain.PeriodCompleted
	t.donePeriods++
	return t.flush(ctx)
}

func (t *tracker) flush(ctx context.Context) error {
	st, err := t.store.JobStatus(ctx, t.job.ID)
	if err != nil {
		return err
	}
	if st == domain.JobCancelled {
		return domain.ErrJobCancelled
	}

	elapsed := t.now().Sub(t.started)
	t.job.ElapsedSeconds = int(elapsed.Seconds())
	if elapsed > 0 {
		t.job.RecordsPerSecond = float64(t.job.RecordsPulled) / elapsed.Seconds()
	}
	if t.totalPeriods > 0 {
		t.job.ProgressPercent = t.donePeriods * 100 / t.totalPeriods
		if t.donePeriods > 0 && t.donePeriods < t.totalPeriods {
			perPeriod := elapsed / time.Duration(t.donePeriods)
			eta := t.now().Add(perPeriod * time.Duration(t.totalPeriods-t.donePeriods))
			t.job.ETA = eta.UTC().Format(time.RFC3339)
		} else {
			t.job.ETA = ""
		}
	}

	if err := t.store.UpdateJobProgress(ctx, t.job); err != nil {
		return err
	}
	t.hub.Publish(events.Progress(t.job))
	t.lastFlush = t.now()
	t.sinceFlush = 0
	return nil
}
