package accela

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RequestClass distinguishes page fetches from per-record enrichment so
// the header-less fallback can pace them differently.
type RequestClass string

const (
	ClassPagination RequestClass = "pagination"
	ClassEnrichment RequestClass = "enrichment"
)

// RateLimiter tracks the upstream's declared quota window from response
// headers and spaces requests to stay inside it. One instance belongs to
// exactly one client, which is single-flight per job attempt, so no
// locking is needed.
type RateLimiter struct {
	threshold float64 // pause when remaining/limit drops below this

	limit     int
	remaining int
	reset     int64 // unix seconds when the window resets
	haveState bool

	pagination *rate.Limiter
	enrichment *rate.Limiter

	count429 int
	pauses   int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(threshold, paginationPerSec, enrichmentPerSec float64) *RateLimiter {
	return &RateLimiter{
		threshold:  threshold,
		pagination: rate.NewLimiter(rate.Limit(paginationPerSec), 1),
		enrichment: rate.NewLimiter(rate.Limit(enrichmentPerSec), 1),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UpdateFromHeaders ingests x-ratelimit-* headers after every response.
func (rl *RateLimiter) UpdateFromHeaders(h http.Header) {
	seen := false
	if v, err := strconv.Atoi(h.Get("x-ratelimit-limit")); err == nil {
		rl.limit = v
		seen = true
	}
	if v, err := strconv.Atoi(h.Get("x-ratelimit-remaining")); err == nil {
		rl.remaining = v
		seen = true
	}
	if v, err := strconv.ParseInt(h.Get("x-ratelimit-reset"), 10, 64); err == nil {
		rl.reset = v
		seen = true
	}
	if seen {
		rl.haveState = true
	}
}

func (rl *RateLimiter) shouldPause() bool {
	if !rl.haveState || rl.limit <= 0 {
		return false
	}
	return float64(rl.remaining)/float64(rl.limit) < rl.threshold
}

// delayUntilSafe spreads the reserved 80% of the remaining quota evenly
// over the time left in the window, with jitter.
func (rl *RateLimiter) delayUntilSafe() time.Duration {
	untilReset := time.Duration(rl.reset-rl.now().Unix()) * time.Second
	if untilReset < 0 {
		untilReset = 0
	}

	if rl.remaining == 0 {
		return untilReset + jitter(100*time.Millisecond, 500*time.Millisecond)
	}

	safeRemaining := int(float64(rl.remaining) * 0.8)
	if safeRemaining > 0 && untilReset > 0 {
		d := untilReset / time.Duration(safeRemaining)
		return d + time.Duration(rand.Float64()*0.1*float64(d))
	}
	return jitter(100*time.Millisecond, 300*time.Millisecond)
}

// Wait blocks as needed before the next request of the given class.
// With no window state yet, the per-class fallback limiter paces us; with
// state, we only pause once the remaining fraction crosses the threshold.
func (rl *RateLimiter) Wait(ctx context.Context, class RequestClass) error {
	if !rl.haveState {
		if class == ClassEnrichment {
			return rl.enrichment.Wait(ctx)
		}
		return rl.pagination.Wait(ctx)
	}
	if !rl.shouldPause() {
		return nil
	}
	d := rl.delayUntilSafe()
	rl.pauses++
	log.Printf("[rate] %d/%d remaining, pausing %s before %s request (pause #%d)",
		rl.remaining, rl.limit, d.Round(10*time.Millisecond), class, rl.pauses)
	return rl.sleep(ctx, d)
}

// Handle429 waits out a 429 response: Retry-After wins, then the declared
// reset time, then capped exponential backoff when no metadata exists.
func (rl *RateLimiter) Handle429(ctx context.Context, h http.Header) error {
	rl.count429++
	rl.UpdateFromHeaders(h)

	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil {
			d := time.Duration(secs*float64(time.Second)) + jitter(100*time.Millisecond, 500*time.Millisecond)
			log.Printf("[rate] 429 with Retry-After, waiting %s", d.Round(10*time.Millisecond))
			return rl.sleep(ctx, d)
		}
	}

	if rl.reset > 0 {
		until := time.Duration(rl.reset-rl.now().Unix()) * time.Second
		if until < 0 {
			until = 0
		}
		d := until + jitter(500*time.Millisecond, 2*time.Second)
		log.Printf("[rate] 429, waiting %s until window reset (429 #%d)", d.Round(10*time.Millisecond), rl.count429)
		return rl.sleep(ctx, d)
	}

	backoff := time.Duration(1<<uint(rl.count429)) * time.Second
	if backoff > 60*time.Second {
		backoff = 60 * time.Second
	}
	d := backoff + time.Duration(rand.Float64()*0.5*float64(backoff))
	log.Printf("[rate] 429 with no rate headers, backing off %s", d.Round(10*time.Millisecond))
	return rl.sleep(ctx, d)
}

func jitter(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rand.Float64()*float64(hi-lo))
}

// Stats is a point-in-time view for diagnostics.
type Stats struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Count429  int   `json:"total_429s"`
	Pauses    int   `json:"total_pauses"`
}

func (rl *RateLimiter) Snapshot() Stats {
	return Stats{
		Limit:     rl.limit,
		Remaining: rl.remaining,
		Reset:     rl.reset,
		Count429:  rl.count429,
		Pauses:    rl.pauses,
	}
}
