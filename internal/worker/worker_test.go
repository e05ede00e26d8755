package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"permitpulse-engine/internal/accela"
	"permitpulse-engine/internal/aggregate"
	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
)

var testNow = time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store that records which mutations ran.
type fakeStore struct {
	job    *domain.Job
	tenant domain.Tenant

	permitsByYear map[int][]domain.Permit
	undated       []domain.Permit

	saved       []domain.Permit
	seen        map[string]bool
	periodsDone []string

	completed    bool
	requeued     bool
	failed       bool
	failKind     string
	disconnected bool
	touchedPull  bool

	cancelled      bool // when set, JobStatus reports the job cancelled
	progressWrites int
}

func newFakeStore(job *domain.Job) *fakeStore {
	return &fakeStore{
		job:    job,
		tenant: domain.Tenant{ID: job.TenantID, Name: "Springfield County", AgencyCode: "SPRINGFIELD"},
		seen:   map[string]bool{},
	}
}

func (f *fakeStore) ClaimOldestPending(ctx context.Context, now time.Time) (*domain.Job, error) {
	return nil, nil
}

func (f *fakeStore) Job(ctx context.Context, id string) (domain.Job, error) {
	if f.job == nil || f.job.ID != id {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return *f.job, nil
}

func (f *fakeStore) JobStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	if f.cancelled {
		return domain.JobCancelled, nil
	}
	return domain.JobRunning, nil
}

func (f *fakeStore) UpdateJobProgress(ctx context.Context, j *domain.Job) error {
	f.progressWrites++
	return nil
}

func (f *fakeStore) MarkPeriodDone(ctx context.Context, jobID, period string) error {
	f.periodsDone = append(f.periodsDone, period)
	return nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, id string, now time.Time) error {
	f.completed = true
	return nil
}

func (f *fakeStore) FailJob(ctx context.Context, id, message, kind string, now time.Time) error {
	f.failed = true
	f.failKind = kind
	return nil
}

func (f *fakeStore) RequeueJob(ctx context.Context, id, message, kind string, now time.Time) error {
	f.requeued = true
	return nil
}

func (f *fakeStore) ResetStaleRunning(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) Tenant(ctx context.Context, id string) (domain.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeStore) MarkTenantDisconnected(ctx context.Context, id string) error {
	f.disconnected = true
	return nil
}

func (f *fakeStore) TouchTenantPull(ctx context.Context, id string, pulledAt, nextPullAt time.Time) error {
	f.touchedPull = true
	return nil
}

func (f *fakeStore) SavePermit(ctx context.Context, p *domain.Permit) (bool, error) {
	f.saved = append(f.saved, *p)
	if f.seen[p.ExternalID] {
		return false, nil
	}
	f.seen[p.ExternalID] = true
	return true, nil
}

func (f *fakeStore) PermitYears(ctx context.Context, tenantID string) ([]int, error) {
	var years []int
	if len(f.undated) > 0 {
		years = append(years, 0)
	}
	for y := range f.permitsByYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (f *fakeStore) PermitsOpenedIn(ctx context.Context, tenantID string, year int) ([]domain.Permit, error) {
	return f.permitsByYear[year], nil
}

func (f *fakeStore) UndatedPermits(ctx context.Context, tenantID string) ([]domain.Permit, error) {
	return f.undated, nil
}

// fakeIterator replays canned batches then reports exhaustion.
type fakeIterator struct {
	batches [][]accela.Record
}

func (it *fakeIterator) Next(ctx context.Context) ([]accela.Record, error) {
	if len(it.batches) == 0 {
		return nil, io.EOF
	}
	b := it.batches[0]
	it.batches = it.batches[1:]
	return b, nil
}

type fakeClient struct {
	queries []accela.Query
	batches [][]accela.Record
}

func (c *fakeClient) Records(q accela.Query, offset int) RecordIterator {
	c.queries = append(c.queries, q)
	return &fakeIterator{batches: c.batches}
}

func (c *fakeClient) Enrich(ctx context.Context, rec accela.Record) (addresses, owners, parcels []map[string]any) {
	return nil, nil, nil
}

// fakeAgg mirrors the real aggregator's outcomes: dateless permits are
// skipped, the first permit for a key creates, later ones update.
type fakeAgg struct {
	created map[string]bool
	calls   int
}

func (a *fakeAgg) ProcessPermit(ctx context.Context, p domain.Permit) (aggregate.Result, error) {
	a.calls++
	if p.OpenedDate == nil {
		return aggregate.Result{Skipped: true}, nil
	}
	if a.created == nil {
		a.created = map[string]bool{}
	}
	if a.created[p.ExternalID] {
		return aggregate.Result{}, nil
	}
	a.created[p.ExternalID] = true
	return aggregate.Result{Created: true}, nil
}

func newTestProcessor(t *testing.T, fs *fakeStore, client Client, agg Aggregator) *Processor {
	t.Helper()
	var cfgVal atomic.Value
	cfgVal.Store(config.Defaults())
	factory := func(ctx context.Context, tenant domain.Tenant) (Client, error) {
		return client, nil
	}
	p := New(fs, factory, agg, events.NewHub(), &cfgVal)
	p.now = func() time.Time { return testNow }
	return p
}

func testRecord(id, opened string) accela.Record {
	payload := map[string]any{"id": id}
	if opened != "" {
		payload["openedDate"] = opened
	}
	return accela.NewRecord(payload)
}

func TestFinishPolicy(t *testing.T) {
	reauth := fmt.Errorf("refresh token rejected: %w", domain.ErrReauthRequired)
	cases := []struct {
		name       string
		err        error
		retryCount int

		wantCompleted    bool
		wantRequeued     bool
		wantFailed       bool
		wantKind         string
		wantDisconnected bool
	}{
		{name: "success", err: nil, wantCompleted: true},
		{name: "transient retries", err: errors.New("upstream 503"), retryCount: 0, wantRequeued: true},
		{name: "transient exhausted", err: errors.New("upstream 503"), retryCount: 3, wantFailed: true, wantKind: "transient"},
		{name: "reauth fails fast", err: reauth, retryCount: 0, wantFailed: true, wantKind: "reauth_required", wantDisconnected: true},
		{name: "cancelled is not a failure", err: domain.ErrJobCancelled},
		{name: "deleted row aborts like a cancel", err: domain.ErrJobNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := &domain.Job{
				ID:         "job-1",
				TenantID:   "t1",
				Type:       domain.JobIncrementalPull,
				Status:     domain.JobRunning,
				RetryCount: tc.retryCount,
				MaxRetries: 3,
			}
			fs := newFakeStore(job)
			p := newTestProcessor(t, fs, &fakeClient{}, &fakeAgg{})

			p.finish(context.Background(), job, tc.err)

			if fs.completed != tc.wantCompleted {
				t.Errorf("completed = %v, want %v", fs.completed, tc.wantCompleted)
			}
			if fs.requeued != tc.wantRequeued {
				t.Errorf("requeued = %v, want %v", fs.requeued, tc.wantRequeued)
			}
			if fs.failed != tc.wantFailed {
				t.Errorf("failed = %v, want %v", fs.failed, tc.wantFailed)
			}
			if tc.wantKind != "" && fs.failKind != tc.wantKind {
				t.Errorf("failKind = %q, want %q", fs.failKind, tc.wantKind)
			}
			if fs.disconnected != tc.wantDisconnected {
				t.Errorf("disconnected = %v, want %v", fs.disconnected, tc.wantDisconnected)
			}
		})
	}
}
