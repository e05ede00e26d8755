package accela

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"permitpulse-engine/internal/domain"
)

// Client fetches records from the upstream civic-records API for one
// tenant. A client instance is owned by a single job attempt; nothing in
// it is safe for concurrent use, and nothing needs to be.
type Client struct {
	hc         *http.Client
	baseURL    string
	agency     string
	tokens     *TokenManager
	limiter    *RateLimiter
	maxRetries int
}

type ClientConfig struct {
	BaseURL    string
	Agency     string
	Timeout    time.Duration
	MaxRetries int
}

func NewClient(cfg ClientConfig, tm *TokenManager, rl *RateLimiter) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		hc:         &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		agency:     cfg.Agency,
		tokens:     tm,
		limiter:    rl,
		maxRetries: cfg.MaxRetries,
	}
}

func (c *Client) Tokens() *TokenManager { return c.tokens }
func (c *Client) RateStats() Stats      { return c.limiter.Snapshot() }

// Query bounds one listing pull.
type Query struct {
	Module   string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
	Type     string
	Expand   bool // fold addresses/owners/parcels into the listing call
}

// Stream pages through a listing lazily. It is finite and NOT
// restartable: after an error or exhaustion, resuming means building a
// new Stream with an explicit offset, not reusing this one.
type Stream struct {
	c      *Client
	q      Query
	offset int
	done   bool

	// OutOfWindow counts records the upstream returned outside the
	// requested date window; they are filtered, not fatal.
	OutOfWindow int
}

// Records starts a stream at the given offset (0 for a fresh pull).
func (c *Client) Records(q Query, offset int) *Stream {
	if q.Module == "" {
		q.Module = "Building"
	}
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 1000
	}
	return &Stream{c: c, q: q, offset: offset}
}

// Next returns the next batch, or io.EOF once the listing is exhausted.
func (s *Stream) Next(ctx context.Context) ([]Record, error) {
	if s.done {
		return nil, io.EOF
	}

	params := url.Values{
		"module":         {s.q.Module},
		"openedDateFrom": {s.q.DateFrom.Format("2006-01-02")},
		"openedDateTo":   {s.q.DateTo.Format("2006-01-02")},
		"limit":          {strconv.Itoa(s.q.Limit)},
		"offset":         {strconv.Itoa(s.offset)},
	}
	if s.q.Type != "" {
		params.Set("type", s.q.Type)
	}
	if s.q.Expand {
		params.Set("expand", "addresses,owners,parcels")
	}

	payload, err := s.c.doJSON(ctx, ClassPagination, "/v4/records", params)
	if err != nil {
		s.done = true
		return nil, err
	}

	raw, _ := payload["result"].([]any)
	if len(raw) < s.q.Limit {
		s.done = true
	}
	s.offset += len(raw)

	batch := make([]Record, 0, len(raw))
	dropped := 0
	for _, it := range raw {
		m, ok := it.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		rec := NewRecord(m)
		if !s.inWindow(rec) {
			dropped++
			s.OutOfWindow++
			continue
		}
		batch = append(batch, rec)
	}
	if dropped > 0 {
		log.Printf("[accela] filtered %d record(s) outside window %s..%s (upstream inconsistency)",
			dropped, s.q.DateFrom.Format("2006-01-02"), s.q.DateTo.Format("2006-01-02"))
	}

	if len(batch) == 0 && s.done {
		return nil, io.EOF
	}
	return batch, nil
}

// inWindow re-checks the date bounds: the upstream occasionally leaks
// records outside the requested range and that is its bug, not ours.
// Records with no parseable date pass through; the aggregator skips them
// with its own accounting.
func (s *Stream) inWindow(rec Record) bool {
	t, ok := rec.OpenedDate()
	if !ok {
		return true
	}
	from := s.q.DateFrom.Truncate(24 * time.Hour)
	to := s.q.DateTo.Add(24*time.Hour - time.Nanosecond)
	return !t.Before(from) && !t.After(to)
}

// Enrich returns address/owner/parcel data for a record, preferring the
// lists already expanded into the listing payload and only falling back
// to the per-record sub-resource calls when they are missing.
func (c *Client) Enrich(ctx context.Context, rec Record) (addresses, owners, parcels []map[string]any) {
	addresses = rec.Addresses()
	owners = rec.Owners()
	parcels = rec.Parcels()

	id := rec.ID()
	if id == "" {
		return addresses, owners, parcels
	}
	if addresses == nil {
		addresses = c.subResource(ctx, id, "addresses")
	}
	if owners == nil {
		owners = c.subResource(ctx, id, "owners")
	}
	if parcels == nil {
		parcels = c.subResource(ctx, id, "parcels")
	}
	return addresses, owners, parcels
}

// subResource is best-effort: a malformed or failed enrichment call is a
// per-record data problem, logged and skipped, never a job failure.
func (c *Client) subResource(ctx context.Context, recordID, kind string) []map[string]any {
	payload, err := c.doJSON(ctx, ClassEnrichment,
		"/v4/records/"+url.PathEscape(recordID)+"/"+kind, nil)
	if err != nil {
		// Token failures must still propagate through the caller's next
		// pagination call; here we only drop this record's enrichment.
		log.Printf("[accela] %s enrichment for %s failed: %v", kind, recordID, err)
		return nil
	}
	return list(payload, "result")
}

// TestConnection validates the token and issues a minimal one-record
// listing. Used by the tenant "test" endpoint and the CLI probe.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.tokens.EnsureValid(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	st := c.Records(Query{DateFrom: now.AddDate(0, 0, -7), DateTo: now, Limit: 1}, 0)
	_, err := st.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// doJSON issues one authenticated call with rate-limit pacing, bounded
// 429 waits and a single retry for transient network/5xx failures.
func (c *Client) doJSON(ctx context.Context, class RequestClass, path string, params url.Values) (map[string]any, error) {
	if err := c.limiter.Wait(ctx, class); err != nil {
		return nil, err
	}
	if err := c.tokens.EnsureValid(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	transientLeft := 1
	refreshed := false
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		// Upstream quirk: the Authorization header carries the bare
		// token, no "Bearer " prefix.
		req.Header.Set("Authorization", c.tokens.AccessToken())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-accela-agency", c.agency)

		res, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if transientLeft > 0 {
				transientLeft--
				log.Printf("[accela] %s %s: %v (retrying once)", class, path, err)
				continue
			}
			return nil, fmt.Errorf("%s request: %w", class, err)
		}

		c.limiter.UpdateFromHeaders(res.Header)

		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			header := res.Header
			drain(res)
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%s request after %d attempts: %w", class, attempt+1, domain.ErrRateLimited)
			}
			if err := c.limiter.Handle429(ctx, header); err != nil {
				return nil, err
			}
			continue

		case res.StatusCode == http.StatusUnauthorized:
			drain(res)
			// One forced refresh covers a token revoked server-side
			// between EnsureValid and the call; a second 401 means the
			// connection itself is dead.
			if !refreshed {
				refreshed = true
				if err := c.tokens.Refresh(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("request unauthorized after refresh: %w", domain.ErrReauthRequired)

		case res.StatusCode >= 500:
			drain(res)
			if transientLeft > 0 {
				transientLeft--
				log.Printf("[accela] %s %s: upstream %d (retrying once)", class, path, res.StatusCode)
				continue
			}
			return nil, fmt.Errorf("upstream status %d on %s", res.StatusCode, path)

		case res.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			res.Body.Close()
			return nil, fmt.Errorf("upstream status %d on %s: %s", res.StatusCode, path, strings.TrimSpace(string(body)))
		}

		var payload map[string]any
		err = json.NewDecoder(res.Body).Decode(&payload)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
		return payload, nil
	}
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
	res.Body.Close()
}
