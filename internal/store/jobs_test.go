package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"permitpulse-engine/internal/domain"
)

func TestCreateJobOnePerTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")

	err := s.CreateJob(ctx, &domain.Job{ID: "job-2", TenantID: "t1", Type: domain.JobIncrementalPull})
	if !errors.Is(err, domain.ErrJobConflict) {
		t.Fatalf("second enqueue err = %v, want ErrJobConflict", err)
	}

	// A different tenant is unaffected.
	seedJob(t, s, "job-3", "t2")

	// Once the first job is terminal the tenant can enqueue again.
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob(ctx, "job-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateJob(ctx, &domain.Job{ID: "job-4", TenantID: "t1", Type: domain.JobIncrementalPull}); err != nil {
		t.Fatalf("enqueue after completion: %v", err)
	}
}

func TestClaimOldestPendingFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-a", "t1")
	seedJob(t, s, "job-b", "t2")

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := s.ClaimOldestPending(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first.ID != "job-a" {
		t.Fatalf("first claim = %+v, want job-a", first)
	}
	if first.Status != domain.JobRunning || first.StartedAt == nil {
		t.Fatalf("claimed job not running: status=%s started=%v", first.Status, first.StartedAt)
	}

	second, err := s.ClaimOldestPending(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.ID != "job-b" {
		t.Fatalf("second claim = %+v, want job-b", second)
	}

	empty, err := s.ClaimOldestPending(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if empty != nil {
		t.Fatalf("claim on empty queue = %+v, want nil", empty)
	}
}

func TestRequeueJobPreservesPeriodsDone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkPeriodDone(ctx, "job-1", "2019"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkPeriodDone(ctx, "job-1", "2020"); err != nil {
		t.Fatal(err)
	}

	if err := s.RequeueJob(ctx, "job-1", "upstream 503", "transient", time.Now()); err != nil {
		t.Fatal(err)
	}

	j, err := s.Job(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != domain.JobPending {
		t.Fatalf("status = %s, want pending", j.Status)
	}
	if j.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1", j.RetryCount)
	}
	if j.StartedAt != nil {
		t.Fatalf("started_at = %v, want cleared", j.StartedAt)
	}
	if j.ErrorMessage != "upstream 503" || j.ErrorKind != "transient" {
		t.Fatalf("error fields = %q/%q", j.ErrorMessage, j.ErrorKind)
	}
	for _, period := range []string{"2019", "2020"} {
		if j.PeriodsDone[period] != domain.PeriodCompleted {
			t.Fatalf("period %s lost across requeue: %v", period, j.PeriodsDone)
		}
	}
}

func TestCancelJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	seedJob(t, s, "job-1", "t1")

	if err := s.CancelJob(ctx, "job-1", now); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	st, err := s.JobStatus(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.JobCancelled {
		t.Fatalf("status = %s, want cancelled", st)
	}

	if err := s.CancelJob(ctx, "job-1", now); !errors.Is(err, domain.ErrJobConflict) {
		t.Fatalf("cancel terminal err = %v, want ErrJobConflict", err)
	}
	if err := s.CancelJob(ctx, "nope", now); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("cancel missing err = %v, want ErrJobNotFound", err)
	}
}

func TestCancelWinsOverLateFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.CancelJob(ctx, "job-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	// A worker that noticed the cancel late cannot flip the row back.
	if err := s.FailJob(ctx, "job-1", "boom", "transient", time.Now()); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("FailJob on cancelled err = %v, want ErrJobNotFound", err)
	}
	j := mustJob(t, s, "job-1")
	if err := s.UpdateJobProgress(ctx, &j); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.JobStatus(ctx, "job-1"); st != domain.JobCancelled {
		t.Fatalf("status = %s, want cancelled to stick", st)
	}
}

func TestResetStaleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}

	n, err := s.ResetStaleRunning(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("reset with old cutoff = %d, want 0", n)
	}

	n, err = s.ResetStaleRunning(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reset with future cutoff = %d, want 1", n)
	}

	reclaimed, err := s.ClaimOldestPending(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if reclaimed == nil || reclaimed.ID != "job-1" {
		t.Fatalf("reclaim after reset = %+v, want job-1", reclaimed)
	}
}

func TestCompleteJobClearsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.RequeueJob(ctx, "job-1", "flaky", "transient", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteJob(ctx, "job-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	j := mustJob(t, s, "job-1")
	if j.Status != domain.JobCompleted || j.ProgressPercent != 100 {
		t.Fatalf("completed job = %s %d%%", j.Status, j.ProgressPercent)
	}
	if j.ErrorMessage != "" || j.ErrorKind != "" {
		t.Fatalf("error fields survived completion: %q/%q", j.ErrorMessage, j.ErrorKind)
	}
	if j.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1 kept for the record", j.RetryCount)
	}
}

func TestDeleteJobRequiresTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "job-1", "t1")

	if err := s.DeleteJob(ctx, "job-1"); !errors.Is(err, domain.ErrJobConflict) {
		t.Fatalf("delete pending err = %v, want ErrJobConflict", err)
	}
	if err := s.CancelJob(ctx, "job-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteJob(ctx, "job-1"); err != nil {
		t.Fatalf("delete cancelled: %v", err)
	}
	if _, err := s.Job(ctx, "job-1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("job still present after delete: %v", err)
	}
}

func mustJob(t *testing.T, s *Store, id string) domain.Job {
	t.Helper()
	j, err := s.Job(context.Background(), id)
	if err != nil {
		t.Fatalf("Job(%s): %v", id, err)
	}
	return j
}
