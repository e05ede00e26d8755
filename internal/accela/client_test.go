package accela

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/secrets"
)

// newRecordsClient builds a client with a live token and a limiter whose
// fallback pacing and sleeps are effectively disabled.
func newRecordsClient(t *testing.T, baseURL, authURL string) *Client {
	t.Helper()
	tm := NewTokenManager(TokenConfig{
		AuthURL:      authURL,
		ClientID:     "cid",
		ClientSecret: "shh",
		Environment:  "PROD",
		Agency:       "SPRINGFIELD",
	}, secrets.TokenSet{
		AccessToken:  "tok-live",
		RefreshToken: "ref-live",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil)
	rl := NewRateLimiter(0.10, 10000, 10000)
	rl.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return NewClient(ClientConfig{BaseURL: baseURL, Agency: "SPRINGFIELD", MaxRetries: 2}, tm, rl)
}

func recordPayload(id, opened string) map[string]any {
	m := map[string]any{"id": id}
	if opened != "" {
		m["openedDate"] = opened
	}
	return m
}

func writeResult(w http.ResponseWriter, recs []map[string]any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": recs})
}

func TestStreamPaginates(t *testing.T) {
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/records" {
			t.Errorf("path = %s, want /v4/records", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "tok-live" {
			t.Errorf("Authorization = %q, want bare token %q", got, "tok-live")
		}
		if got := r.Header.Get("x-accela-agency"); got != "SPRINGFIELD" {
			t.Errorf("x-accela-agency = %q, want SPRINGFIELD", got)
		}
		off, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, off)
		switch off {
		case 0:
			writeResult(w, []map[string]any{
				recordPayload("BLD-1", "2021-02-01"),
				recordPayload("BLD-2", "2021-03-15"),
			})
		case 2:
			writeResult(w, []map[string]any{
				recordPayload("BLD-3", "2021-07-09"),
			})
		default:
			t.Errorf("unexpected offset %d", off)
			writeResult(w, nil)
		}
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, "http://unused")
	st := c.Records(Query{
		DateFrom: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		Limit:    2,
	}, 0)
	ctx := context.Background()

	first, err := st.Next(ctx)
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if len(first) != 2 || first[0].ID() != "BLD-1" || first[1].ID() != "BLD-2" {
		t.Fatalf("first batch = %d records, want BLD-1, BLD-2", len(first))
	}

	second, err := st.Next(ctx)
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if len(second) != 1 || second[0].ID() != "BLD-3" {
		t.Fatalf("second batch = %d records, want BLD-3", len(second))
	}

	if _, err := st.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("third Next err = %v, want io.EOF", err)
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 2 {
		t.Fatalf("offsets = %v, want [0 2]", offsets)
	}
}

func TestStreamFiltersOutsideWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, []map[string]any{
			recordPayload("IN-1", "2021-06-01"),
			recordPayload("OLD-1", "2019-06-01"), // outside the window, upstream leak
			recordPayload("NODATE", ""),
		})
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, "http://unused")
	st := c.Records(Query{
		DateFrom: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}, 0)

	batch, err := st.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d records, want 2 (dated in-window + dateless)", len(batch))
	}
	if batch[0].ID() != "IN-1" || batch[1].ID() != "NODATE" {
		t.Fatalf("kept %s, %s; want IN-1, NODATE", batch[0].ID(), batch[1].ID())
	}
	if st.OutOfWindow != 1 {
		t.Fatalf("OutOfWindow = %d, want 1", st.OutOfWindow)
	}
}

func TestDoJSONRetriesAfter429(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeResult(w, []map[string]any{recordPayload("BLD-9", "2021-04-04")})
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, "http://unused")
	st := c.Records(Query{
		DateFrom: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}, 0)

	batch, err := st.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 1 || batch[0].ID() != "BLD-9" {
		t.Fatalf("batch = %v, want BLD-9", batch)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
	if stats := c.RateStats(); stats.Count429 != 1 {
		t.Fatalf("Count429 = %d, want 1", stats.Count429)
	}
}

func TestDoJSONGivesUpAfterRepeated429(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, "http://unused") // MaxRetries 2
	st := c.Records(Query{
		DateFrom: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}, 0)

	_, err := st.Next(context.Background())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3 (initial + 2 retries)", requests)
	}
	if _, err := st.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("stream not finished after failure: %v", err)
	}
}

func TestDoJSONRefreshesOnceOn401(t *testing.T) {
	refreshes := 0
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok-new",
			"refresh_token": "ref-new",
			"expires_in":    3600,
		})
	}))
	defer auth.Close()

	var seenTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTokens = append(seenTokens, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, auth.URL)
	st := c.Records(Query{
		DateFrom: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}, 0)

	_, err := st.Next(context.Background())
	if !errors.Is(err, domain.ErrReauthRequired) {
		t.Fatalf("err = %v, want ErrReauthRequired", err)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want exactly 1", refreshes)
	}
	want := []string{"tok-live", "tok-new"}
	if len(seenTokens) != 2 || seenTokens[0] != want[0] || seenTokens[1] != want[1] {
		t.Fatalf("Authorization headers = %v, want %v", seenTokens, want)
	}
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "1" {
			t.Errorf("limit = %q, want 1", got)
		}
		writeResult(w, nil)
	}))
	defer srv.Close()

	c := newRecordsClient(t, srv.URL, "http://unused")
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}
