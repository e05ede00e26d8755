package crm

import (
	"context"
	"log"
	"strings"
	"time"

	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
)

// Store is the persistence surface a sync run needs.
type Store interface {
	PendingQualifiedLeads(ctx context.Context, tenantID string, limit int) ([]domain.Lead, error)
	Property(ctx context.Context, id string) (domain.Property, error)
	MarkLeadSynced(ctx context.Context, id, crmContactID string, now time.Time) error
	MarkLeadSyncError(ctx context.Context, id, msg string, now time.Time) error
}

// Contacts is the CRM surface; *Client satisfies it.
type Contacts interface {
	UpsertContact(ctx context.Context, contact Contact) (string, error)
}

// Syncer pushes pending qualified leads to the CRM one at a time. A
// per-lead failure marks that lead and moves on; it never aborts the
// batch.
type Syncer struct {
	store    Store
	contacts Contacts
	hub      *events.Hub
	now      func() time.Time
}

func NewSyncer(store Store, contacts Contacts, hub *events.Hub) *Syncer {
	return &Syncer{store: store, contacts: contacts, hub: hub, now: time.Now}
}

// SyncResult summarizes one batch.
type SyncResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

func (s *Syncer) SyncPending(ctx context.Context, tenantID string, limit int) (SyncResult, error) {
	var res SyncResult

	leads, err := s.store.PendingQualifiedLeads(ctx, tenantID, limit)
	if err != nil {
		return res, err
	}

	for i := range leads {
		lead := &leads[i]
		res.Attempted++

		id, err := s.syncOne(ctx, lead)
		if err != nil {
			res.Failed++
			log.Printf("[crm] lead %s: %v", lead.ID, err)
			if err := s.store.MarkLeadSyncError(ctx, lead.ID, err.Error(), s.now()); err != nil {
				log.Printf("[crm] lead %s: mark error: %v", lead.ID, err)
			}
			s.hub.Publish(events.Make(events.TypeLeadSyncError, map[string]string{
				"lead_id": lead.ID, "error": err.Error(),
			}))
			continue
		}

		res.Synced++
		if err := s.store.MarkLeadSynced(ctx, lead.ID, id, s.now()); err != nil {
			log.Printf("[crm] lead %s: mark synced: %v", lead.ID, err)
			continue
		}
		s.hub.Publish(events.Make(events.TypeLeadSynced, map[string]string{
			"lead_id": lead.ID, "crm_contact_id": id,
		}))
	}

	if res.Attempted > 0 {
		log.Printf("[crm] tenant %s: synced %d/%d lead(s), %d failed",
			tenantID, res.Synced, res.Attempted, res.Failed)
	}
	return res, nil
}

func (s *Syncer) syncOne(ctx context.Context, lead *domain.Lead) (string, error) {
	prop, err := s.store.Property(ctx, lead.PropertyID)
	if err != nil {
		return "", err
	}

	contact := Contact{
		Name:       prop.OwnerName,
		Phone:      prop.OwnerPhone,
		Email:      prop.OwnerEmail,
		Address1:   streetLine(prop),
		City:       prop.City,
		State:      prop.State,
		PostalCode: prop.ZipCode,
		Tags: []string{
			"permitpulse",
			strings.ToLower(lead.LeadTier),
			prop.Pipeline,
		},
	}
	return s.contacts.UpsertContact(ctx, contact)
}

func streetLine(p domain.Property) string {
	parts := []string{p.StreetNumber, p.StreetName, p.StreetSuffix}
	var kept []string
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	line := strings.Join(kept, " ")
	if p.UnitNumber != "" {
		line += " #" + p.UnitNumber
	}
	return line
}
