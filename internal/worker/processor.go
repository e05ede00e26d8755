package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"permitpulse-engine/internal/accela"
	"permitpulse-engine/internal/aggregate"
	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
)

// Store is the persistence surface the processor drives.
type Store interface {
	ClaimOldestPending(ctx context.Context, now time.Time) (*domain.Job, error)
	Job(ctx context.Context, id string) (domain.Job, error)
	JobStatus(ctx context.Context, id string) (domain.JobStatus, error)
	UpdateJobProgress(ctx context.Context, j *domain.Job) error
	MarkPeriodDone(ctx context.Context, jobID, period string) error
	CompleteJob(ctx context.Context, id string, now time.Time) error
	FailJob(ctx context.Context, id, message, kind string, now time.Time) error
	RequeueJob(ctx context.Context, id, message, kind string, now time.Time) error
	ResetStaleRunning(ctx context.Context, cutoff time.Time) (int, error)

	Tenant(ctx context.Context, id string) (domain.Tenant, error)
	MarkTenantDisconnected(ctx context.Context, id string) error
	TouchTenantPull(ctx context.Context, id string, pulledAt, nextPullAt time.Time) error

	SavePermit(ctx context.Context, p *domain.Permit) (bool, error)
	PermitYears(ctx context.Context, tenantID string) ([]int, error)
	PermitsOpenedIn(ctx context.Context, tenantID string, year int) ([]domain.Permit, error)
	UndatedPermits(ctx context.Context, tenantID string) ([]domain.Permit, error)
}

// RecordIterator pages through one listing window; Next returns io.EOF
// when exhausted. *accela.Stream is the production implementation.
type RecordIterator interface {
	Next(ctx context.Context) ([]accela.Record, error)
}

// Client is the slice of the upstream client a pull job needs.
type Client interface {
	Records(q accela.Query, offset int) RecordIterator
	Enrich(ctx context.Context, rec accela.Record) (addresses, owners, parcels []map[string]any)
}

// ClientFactory builds an authorized client for one tenant. It is called
// once per job attempt; ErrReauthRequired here fails the job fast.
type ClientFactory func(ctx context.Context, tenant domain.Tenant) (Client, error)

// Aggregator folds saved permits into properties and leads.
type Aggregator interface {
	ProcessPermit(ctx context.Context, p domain.Permit) (aggregate.Result, error)
}

// Processor is the single-flight job worker: it claims the oldest
// pending job, runs it to completion, and applies the retry policy.
type Processor struct {
	store   Store
	clients ClientFactory
	agg     Aggregator
	hub     *events.Hub
	cfgVal  *atomic.Value // holds config.Config
	now     func() time.Time

	running atomic.Bool // a job is currently executing
	stop    chan struct{}
	done    chan struct{}
}

func New(store Store, clients ClientFactory, agg Aggregator, hub *events.Hub, cfgVal *atomic.Value) *Processor {
	return &Processor{
		store:   store,
		clients: clients,
		agg:     agg,
		hub:     hub,
		cfgVal:  cfgVal,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *Processor) cfg() config.Config {
	if v := p.cfgVal.Load(); v != nil {
		return v.(config.Config)
	}
	return config.Defaults()
}

// Busy reports whether a job is executing right now; the health reporter
// uses it as a liveness signal.
func (p *Processor) Busy() bool { return p.running.Load() }

// Start recovers stale jobs left behind by a crash, then polls the queue
// until ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) error {
	cutoff := p.now().Add(-p.cfg().StaleThreshold())
	n, err := p.store.ResetStaleRunning(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("stale job recovery: %w", err)
	}
	if n > 0 {
		log.Printf("[worker] reset %d stale running job(s) to pending", n)
	}

	go p.loop(ctx)
	return nil
}

func (p *Processor) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Processor) loop(ctx context.Context) {
	defer close(p.done)

	t := time.NewTicker(p.cfg().PollInterval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-t.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Processor) runOnce(ctx context.Context) {
	job, err := p.store.ClaimOldestPending(ctx, p.now())
	if err != nil {
		log.Printf("[worker] claim: %v", err)
		return
	}
	if job == nil {
		return
	}

	p.running.Store(true)
	defer p.running.Store(false)

	log.Printf("[worker] job %s started: %s tenant=%s (attempt %d/%d)",
		job.ID, job.Type, job.TenantID, job.RetryCount+1, job.MaxRetries+1)
	p.hub.Publish(events.JobEvent(events.TypeJobStarted, job))

	err = p.execute(ctx, job)
	p.finish(ctx, job, err)
}

func (p *Processor) execute(ctx context.Context, job *domain.Job) error {
	tenant, err := p.store.Tenant(ctx, job.TenantID)
	if err != nil {
		return err
	}

	switch job.Type {
	case domain.JobInitialPull:
		return p.runInitialPull(ctx, job, tenant)
	case domain.JobIncrementalPull:
		return p.runIncrementalPull(ctx, job, tenant)
	case domain.JobAggregationRebuild:
		return p.runRebuild(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// finish applies the retry policy. Reauth failures are terminal: retries
// cannot help until an operator re-authorizes the tenant. Cancellation
// is not an error outcome; the row is already marked.
func (p *Processor) finish(ctx context.Context, job *domain.Job, err error) {
	now := p.now()

	switch {
	case err == nil:
		if err := p.store.CompleteJob(ctx, job.ID, now); err != nil {
			log.Printf("[worker] job %s: mark completed: %v", job.ID, err)
			return
		}
		log.Printf("[worker] job %s completed: pulled=%d saved=%d properties=%d+%d leads=%d",
			job.ID, job.RecordsPulled, job.RecordsSaved,
			job.PropertiesCreated, job.PropertiesUpdated, job.LeadsCreated)
		p.publishJob(ctx, job.ID, events.TypeJobCompleted)

	case errors.Is(err, domain.ErrJobCancelled), errors.Is(err, domain.ErrJobNotFound):
		// A row deleted mid-run surfaces from the status poll as
		// not-found and stops the job the same way a cancel does.
		log.Printf("[worker] job %s cancelled after %d record(s)", job.ID, job.RecordsPulled)
		p.publishJob(ctx, job.ID, events.TypeJobCancelled)

	case errors.Is(err, domain.ErrReauthRequired):
		log.Printf("[worker] job %s failed: tenant %s needs re-authorization", job.ID, job.TenantID)
		if err := p.store.FailJob(ctx, job.ID, err.Error(), domain.ErrorKind(err), now); err != nil {
			log.Printf("[worker] job %s: mark failed: %v", job.ID, err)
		}
		if err := p.store.MarkTenantDisconnected(ctx, job.TenantID); err != nil {
			log.Printf("[worker] tenant %s: mark disconnected: %v", job.TenantID, err)
		}
		p.hub.Publish(events.TenantStatus(job.TenantID, domain.TenantDisconnected))
		p.publishJob(ctx, job.ID, events.TypeJobFailed)

	case job.RetryCount < job.MaxRetries:
		log.Printf("[worker] job %s attempt %d failed, requeueing: %v", job.ID, job.RetryCount+1, err)
		if err := p.store.RequeueJob(ctx, job.ID, err.Error(), domain.ErrorKind(err), now); err != nil {
			log.Printf("[worker] job %s: requeue: %v", job.ID, err)
			return
		}
		p.publishJob(ctx, job.ID, events.TypeJobRetried)

	default:
		log.Printf("[worker] job %s failed permanently after %d attempt(s): %v", job.ID, job.RetryCount+1, err)
		if err := p.store.FailJob(ctx, job.ID, err.Error(), domain.ErrorKind(err), now); err != nil {
			log.Printf("[worker] job %s: mark failed: %v", job.ID, err)
		}
		p.publishJob(ctx, job.ID, events.TypeJobFailed)
	}
}

func (p *Processor) publishJob(ctx context.Context, id, typ string) {
	j, err := p.store.Job(ctx, id)
	if err != nil {
		return
	}
	p.hub.Publish(events.JobEvent(typ, &j))
}
