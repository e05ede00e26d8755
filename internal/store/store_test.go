package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"permitpulse-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTenant(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateTenant(context.Background(), &domain.Tenant{
		ID:         id,
		Name:       "Springfield County",
		AgencyCode: "SPRINGFIELD",
	})
	if err != nil {
		t.Fatalf("CreateTenant(%s): %v", id, err)
	}
}

func seedJob(t *testing.T, s *Store, id, tenantID string) {
	t.Helper()
	err := s.CreateJob(context.Background(), &domain.Job{
		ID:         id,
		TenantID:   tenantID,
		Type:       domain.JobInitialPull,
		Params:     domain.JobParams{Years: 5},
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("CreateJob(%s): %v", id, err)
	}
}

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
