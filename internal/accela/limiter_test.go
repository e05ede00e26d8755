package accela

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// testLimiter swaps the clock and sleep for deterministic assertions.
func testLimiter(threshold float64, now time.Time) (*RateLimiter, *[]time.Duration) {
	rl := NewRateLimiter(threshold, 1000, 1000)
	slept := &[]time.Duration{}
	rl.now = func() time.Time { return now }
	rl.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return rl, slept
}

func headers(limit, remaining, reset string) http.Header {
	h := http.Header{}
	h.Set("x-ratelimit-limit", limit)
	h.Set("x-ratelimit-remaining", remaining)
	h.Set("x-ratelimit-reset", reset)
	return h
}

func TestWaitAmpleQuotaDoesNotSleep(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	rl.UpdateFromHeaders(headers("1000", "900", "1060"))
	if err := rl.Wait(context.Background(), ClassPagination); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v with 90%% quota remaining, want no sleep", *slept)
	}
	if rl.Snapshot().Pauses != 0 {
		t.Errorf("Pauses = %d, want 0", rl.Snapshot().Pauses)
	}
}

func TestWaitPausesUnderThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	// 50 of 1000 left, window resets in 60s: pace the reserved 80% of
	// what is left (40 requests) across the window.
	rl.UpdateFromHeaders(headers("1000", "50", "1060"))
	if err := rl.Wait(context.Background(), ClassPagination); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 1 {
		t.Fatalf("sleep calls = %d, want 1", len(*slept))
	}
	base := 60 * time.Second / 40
	got := (*slept)[0]
	if got < base || got > base+base/10+time.Millisecond {
		t.Errorf("pause = %s, want within [%s, %s+10%%]", got, base, base)
	}
	if rl.Snapshot().Pauses != 1 {
		t.Errorf("Pauses = %d, want 1", rl.Snapshot().Pauses)
	}
}

func TestWaitExhaustedWaitsForReset(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	rl.UpdateFromHeaders(headers("1000", "0", "1030"))
	if err := rl.Wait(context.Background(), ClassPagination); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 1 {
		t.Fatalf("sleep calls = %d, want 1", len(*slept))
	}
	got := (*slept)[0]
	if got < 30*time.Second+100*time.Millisecond || got > 30*time.Second+500*time.Millisecond {
		t.Errorf("pause = %s, want reset wait of ~30s plus jitter", got)
	}
}

func TestHandle429PrefersRetryAfter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	h := headers("1000", "0", "1300") // reset far out; Retry-After must win
	h.Set("Retry-After", "7")
	if err := rl.Handle429(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	got := (*slept)[0]
	if got < 7*time.Second || got > 7*time.Second+500*time.Millisecond {
		t.Errorf("429 wait = %s, want ~7s from Retry-After", got)
	}
	if rl.Snapshot().Count429 != 1 {
		t.Errorf("Count429 = %d, want 1", rl.Snapshot().Count429)
	}
}

func TestHandle429FallsBackToReset(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	if err := rl.Handle429(context.Background(), headers("1000", "0", "1015")); err != nil {
		t.Fatal(err)
	}
	got := (*slept)[0]
	if got < 15*time.Second+500*time.Millisecond || got > 17*time.Second {
		t.Errorf("429 wait = %s, want ~15s until reset plus jitter", got)
	}
}

func TestHandle429ExponentialBackoffCapped(t *testing.T) {
	now := time.Unix(1000, 0)
	rl, slept := testLimiter(0.10, now)

	// No headers at all: 2^n seconds, capped at 60.
	for i := 0; i < 8; i++ {
		if err := rl.Handle429(context.Background(), http.Header{}); err != nil {
			t.Fatal(err)
		}
	}
	first := (*slept)[0]
	if first < 2*time.Second || first >= 4*time.Second {
		t.Errorf("first backoff = %s, want in [2s, 4s)", first)
	}
	last := (*slept)[len(*slept)-1]
	if last < 60*time.Second || last > 90*time.Second {
		t.Errorf("8th backoff = %s, want capped at 60s plus jitter", last)
	}
}

func TestWaitFallbackLimiterWithoutHeaders(t *testing.T) {
	rl := NewRateLimiter(0.10, 1000, 1000)

	// No header state seen yet: the x/time/rate fallback paces, and it
	// must not panic or pause for long at these test rates.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx, ClassEnrichment); err != nil {
			t.Fatal(err)
		}
	}
}
