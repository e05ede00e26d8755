package scheduler

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
)

// Store is the persistence surface the auto-pull sweep needs.
type Store interface {
	TenantsDueForPull(ctx context.Context, now time.Time) ([]domain.Tenant, error)
	CreateJob(ctx context.Context, j *domain.Job) error
	SetTenantAutoPull(ctx context.Context, id string, enabled bool, nextPullAt time.Time) error
}

// AutoPull enqueues incremental_pull jobs for tenants whose weekly pull
// is due. Next pull times are staggered inside a random window so every
// tenant of an install does not hammer the upstream at the same hour.
type AutoPull struct {
	store  Store
	hub    *events.Hub
	cfgVal *atomic.Value // holds config.Config
	now    func() time.Time
}

func NewAutoPull(store Store, hub *events.Hub, cfgVal *atomic.Value) *AutoPull {
	return &AutoPull{store: store, hub: hub, cfgVal: cfgVal, now: time.Now}
}

func (a *AutoPull) cfg() config.Config {
	if v := a.cfgVal.Load(); v != nil {
		return v.(config.Config)
	}
	return config.Defaults()
}

// Sweep is the scheduler task: one pass over the due tenants.
func (a *AutoPull) Sweep(ctx context.Context) error {
	cfg := a.cfg()
	now := a.now()

	due, err := a.store.TenantsDueForPull(ctx, now)
	if err != nil {
		return err
	}

	for _, t := range due {
		job := &domain.Job{
			ID:         uuid.NewString(),
			TenantID:   t.ID,
			Type:       domain.JobIncrementalPull,
			MaxRetries: cfg.Worker.MaxRetries,
		}
		err := a.store.CreateJob(ctx, job)
		if errors.Is(err, domain.ErrJobConflict) {
			// A job is already queued or running; the next sweep will
			// catch this tenant again.
			continue
		}
		if err != nil {
			log.Printf("[scheduler] tenant %s: enqueue pull: %v", t.ID, err)
			continue
		}

		next := a.nextPull(now, cfg)
		if err := a.store.SetTenantAutoPull(ctx, t.ID, true, next); err != nil {
			log.Printf("[scheduler] tenant %s: set next pull: %v", t.ID, err)
		}
		log.Printf("[scheduler] tenant %s: queued incremental pull, next at %s",
			t.ID, next.Format(time.RFC3339))
		a.hub.Publish(events.JobEvent(events.TypeJobQueued, job))
	}
	return nil
}

// nextPull returns now + interval + a random slice of the stagger window.
func (a *AutoPull) nextPull(now time.Time, cfg config.Config) time.Time {
	next := now.AddDate(0, 0, cfg.Scheduler.PullIntervalDays)
	if w := cfg.Scheduler.StaggerWindowHours; w > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(w) * int64(time.Hour))))
	}
	return next
}
