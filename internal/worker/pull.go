package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"permitpulse-engine/internal/accela"
	"permitpulse-engine/internal/domain"
)

// period is one date window of a pull, labelled by calendar year (or
// "window" for the single incremental slice).
type period struct {
	label string
	from  time.Time
	to    time.Time
}

// initialPeriods splits a years-long backfill into calendar years,
// oldest first. The first and last windows are clipped to the actual
// span so a 30-year pull started in August does not drag in a spurious
// extra winter.
func initialPeriods(now time.Time, years int) []period {
	from := now.AddDate(-years, 0, 0)
	var out []period
	for y := from.Year(); y <= now.Year(); y++ {
		p := period{
			label: fmt.Sprintf("%d", y),
			from:  time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC),
			to:    time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC),
		}
		if p.from.Before(from) {
			p.from = from
		}
		if p.to.After(now) {
			p.to = now
		}
		out = append(out, p)
	}
	return out
}

func (p *Processor) runInitialPull(ctx context.Context, job *domain.Job, tenant domain.Tenant) error {
	cfg := p.cfg()

	years := job.Params.Years
	if years <= 0 {
		years = cfg.Pull.DefaultYears
	}
	periods := initialPeriods(p.now(), years)
	return p.pull(ctx, job, tenant, periods)
}

func (p *Processor) runIncrementalPull(ctx context.Context, job *domain.Job, tenant domain.Tenant) error {
	cfg := p.cfg()

	daysBack := job.Params.DaysBack
	if daysBack <= 0 {
		daysBack = cfg.Pull.IncrementalDaysBack
	}
	now := p.now()
	periods := []period{{label: "window", from: now.AddDate(0, 0, -daysBack), to: now}}

	if err := p.pull(ctx, job, tenant, periods); err != nil {
		return err
	}

	next := now.AddDate(0, 0, cfg.Scheduler.PullIntervalDays)
	if err := p.store.TouchTenantPull(ctx, tenant.ID, now, next); err != nil {
		log.Printf("[worker] tenant %s: touch pull time: %v", tenant.ID, err)
	}
	return nil
}

// pull runs the shared ingestion loop over a set of periods, skipping
// any period a previous attempt already finished.
func (p *Processor) pull(ctx context.Context, job *domain.Job, tenant domain.Tenant, periods []period) error {
	cfg := p.cfg()

	client, err := p.clients(ctx, tenant)
	if err != nil {
		return err
	}

	tr := newTracker(p.store, p.hub, job, p.now,
		cfg.Worker.ProgressEveryRecords, cfg.ProgressInterval(), len(periods))

	permitType := job.Params.PermitType
	if permitType == "" {
		permitType = cfg.Pull.PermitType
	}

	for _, per := range periods {
		if job.PeriodsDone[per.label] == domain.PeriodCompleted {
			log.Printf("[worker] job %s: period %s already done, skipping", job.ID, per.label)
			continue
		}
		job.CurrentPeriod, _ = strconv.Atoi(per.label)

		if err := p.pullPeriod(ctx, client, job, tenant, tr, per, permitType, cfg.Pull.BatchSize); err != nil {
			return err
		}
		if err := tr.periodDone(ctx, per.label); err != nil {
			return err
		}
		log.Printf("[worker] job %s: period %s done (%d pulled so far)", job.ID, per.label, job.RecordsPulled)
	}
	return tr.flush(ctx)
}

func (p *Processor) pullPeriod(ctx context.Context, client Client, job *domain.Job, tenant domain.Tenant,
	tr *tracker, per period, permitType string, batchSize int) error {

	stream := client.Records(accela.Query{
		Module:   "Building",
		DateFrom: per.from,
		DateTo:   per.to,
		Limit:    batchSize,
		Type:     permitType,
		Expand:   true,
	}, 0)

	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("period %s: %w", per.label, err)
		}

		for _, rec := range batch {
			if rec.ID() == "" {
				log.Printf("[worker] job %s: record with no id, skipping", job.ID)
				continue
			}

			addresses, owners, parcels := client.Enrich(ctx, rec)
			permit := rec.Permit(tenant.ID, addresses, owners, parcels)

			inserted, err := p.store.SavePermit(ctx, &permit)
			if err != nil {
				return err
			}
			if inserted {
				job.RecordsSaved++
			}

			res, err := p.agg.ProcessPermit(ctx, permit)
			if err != nil {
				return err
			}
			switch {
			case res.Skipped:
			case res.Created:
				job.PropertiesCreated++
				job.LeadsCreated++
			default:
				job.PropertiesUpdated++
			}

			if err := tr.record(ctx); err != nil {
				return err
			}
		}
	}
}
