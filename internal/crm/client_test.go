package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRejectsBadTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"plain token", "pit-abc123", true},
		{"empty", "", false},
		{"trailing newline", "pit-abc123\n", false},
		{"embedded space", "pit abc", false},
		{"non-ascii", "pit-ü", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(Config{BaseURL: "http://unused", Token: tc.token})
			if tc.ok && err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("bad token accepted")
			}
		})
	}
	if _, err := NewClient(Config{Token: "bad\ttoken"}); !errors.Is(err, ErrBadToken) {
		t.Fatalf("err = %v, want ErrBadToken", err)
	}
}

func TestUpsertContact(t *testing.T) {
	var got Contact
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contacts/upsert" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer pit-abc123" {
			t.Errorf("Authorization = %q", auth)
		}
		if v := r.Header.Get("Version"); v != "2021-07-28" {
			t.Errorf("Version = %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": "crm-42"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "pit-abc123", LocationID: "loc-1"})
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.UpsertContact(context.Background(), Contact{Name: "Alice"})
	if err != nil {
		t.Fatalf("UpsertContact: %v", err)
	}
	if id != "crm-42" {
		t.Fatalf("id = %s, want crm-42", id)
	}
	if got.LocationID != "loc-1" {
		t.Errorf("locationId = %q, want injected loc-1", got.LocationID)
	}
	if got.Source != "permitpulse" {
		t.Errorf("source = %q, want default permitpulse", got.Source)
	}
}

func TestUpsertContactFlatIDFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "crm-flat"})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "pit-abc123"})
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.UpsertContact(context.Background(), Contact{Name: "Bob"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "crm-flat" {
		t.Fatalf("id = %s, want crm-flat", id)
	}
}

func TestUpsertContactErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid location"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "pit-abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.UpsertContact(context.Background(), Contact{Name: "Carol"}); err == nil {
		t.Fatal("422 response did not error")
	}
}
