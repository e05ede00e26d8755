package health

import (
	"context"
	"sync/atomic"
	"time"
)

// Component states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Check probes one component. Return an error for down, or a non-empty
// note for degraded-but-working.
type Check func(ctx context.Context) (note string, err error)

type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type Report struct {
	Status     string      `json:"status"`
	At         time.Time   `json:"at"`
	Components []Component `json:"components"`
}

// Reporter runs the registered checks on a timer and caches the result,
// so the health endpoint answers instantly and never fans probe traffic
// out per HTTP request.
type Reporter struct {
	checks []namedCheck
	cached atomic.Value // holds Report
	now    func() time.Time
}

type namedCheck struct {
	name  string
	check Check
}

func NewReporter() *Reporter {
	r := &Reporter{now: time.Now}
	r.cached.Store(Report{Status: StatusDegraded, At: time.Now()})
	return r
}

func (r *Reporter) Register(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run is a scheduler task: probe everything once and cache the report.
func (r *Reporter) Run(ctx context.Context) error {
	report := Report{Status: StatusOK, At: r.now()}

	for _, nc := range r.checks {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		note, err := nc.check(cctx)
		cancel()

		c := Component{Name: nc.name, Status: StatusOK, Detail: note}
		switch {
		case err != nil:
			c.Status = StatusDown
			c.Detail = err.Error()
			report.Status = StatusDown
		case note != "":
			c.Status = StatusDegraded
			if report.Status == StatusOK {
				report.Status = StatusDegraded
			}
		}
		report.Components = append(report.Components, c)
	}

	r.cached.Store(report)
	return nil
}

// Report returns the last cached probe result.
func (r *Reporter) Report() Report {
	return r.cached.Load().(Report)
}
