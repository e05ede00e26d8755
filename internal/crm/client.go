package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrBadToken reports a CRM token that cannot travel in an HTTP header.
var ErrBadToken = errors.New("crm token contains non-printable or non-ascii characters")

// Client talks to the LeadConnector-style CRM over a static private
// token; there is no refresh flow on this side.
type Client struct {
	hc         *http.Client
	baseURL    string
	token      string
	locationID string
}

type Config struct {
	BaseURL    string
	Token      string
	LocationID string
	Timeout    time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if err := validateToken(cfg.Token); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		hc:         &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		locationID: cfg.LocationID,
	}, nil
}

// validateToken rejects tokens with characters that would corrupt the
// Authorization header; a pasted token with a stray newline otherwise
// fails with an opaque transport error much later.
func validateToken(token string) error {
	if token == "" {
		return errors.New("crm token is empty")
	}
	for _, r := range token {
		if r <= ' ' || r > '~' {
			return ErrBadToken
		}
	}
	return nil
}

// Contact is the CRM-side record a lead maps onto.
type Contact struct {
	Name       string   `json:"name,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Email      string   `json:"email,omitempty"`
	Address1   string   `json:"address1,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	LocationID string   `json:"locationId,omitempty"`
	Source     string   `json:"source,omitempty"`
}

type contactResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
	ID string `json:"id"`
}

// UpsertContact creates or updates the contact and returns the CRM id.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) (string, error) {
	contact.LocationID = c.locationID
	if contact.Source == "" {
		contact.Source = "permitpulse"
	}

	body, err := json.Marshal(contact)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/contacts/upsert", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Version", "2021-07-28")

	res, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm upsert: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("crm upsert: status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}

	var out contactResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("crm upsert: decode: %w", err)
	}
	if out.Contact.ID != "" {
		return out.Contact.ID, nil
	}
	return out.ID, nil
}
