package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"permitpulse-engine/internal/domain"
)

// Store is the persistence needed by the aggregator, kept narrow so
// tests can use an in-memory fake.
type Store interface {
	// PropertyByAddress returns (nil, nil) when no property exists yet.
	PropertyByAddress(ctx context.Context, tenantID, normalized string) (*domain.Property, error)
	// UpsertProperty resolves on (tenant_id, normalized_address) and
	// rewrites p.ID with the surviving row's id.
	UpsertProperty(ctx context.Context, p *domain.Property) error
	// BumpPermitCount increments the running permit tally only.
	BumpPermitCount(ctx context.Context, propertyID string, now time.Time) error
	// LeadByProperty returns (nil, nil) when the property has no lead.
	LeadByProperty(ctx context.Context, propertyID string) (*domain.Lead, error)
	// UpsertLead resolves on property_id and rewrites l.ID likewise.
	UpsertLead(ctx context.Context, l *domain.Lead) error
}

// Aggregator folds permits into per-address properties and their leads.
type Aggregator struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// Result reports what a single permit did to the aggregate state.
type Result struct {
	PropertyID string
	LeadID     string
	Created    bool // a new property (and lead) came into existence
	Skipped    bool // permit unusable (no date)
}

// ProcessPermit applies one permit under the most-recent-wins rule:
// a strictly newer permit overwrites the property's denormalized fields
// and re-scores; an older or equal-dated one only bumps the permit count.
// Safe to call any number of times with the same permit.
func (a *Aggregator) ProcessPermit(ctx context.Context, permit domain.Permit) (Result, error) {
	var parsed ParsedAddress
	if permit.PropertyAddress != "" {
		parsed = Parse(permit.PropertyAddress)
	} else {
		// Historical records often carry no address. Key them by permit
		// so they still aggregate instead of being dropped.
		parsed = ParsedAddress{Normalized: "PERMIT-" + permit.ExternalID}
	}
	if parsed.Normalized == "" {
		return Result{Skipped: true}, nil
	}

	if permit.OpenedDate == nil {
		log.Printf("[aggregate] permit %s has no date, skipping", permit.ExternalID)
		return Result{Skipped: true}, nil
	}
	opened := *permit.OpenedDate

	existing, err := a.store.PropertyByAddress(ctx, permit.TenantID, parsed.Normalized)
	if err != nil {
		return Result{}, fmt.Errorf("lookup property: %w", err)
	}

	if existing == nil {
		prop := a.buildProperty(permit, parsed, opened)
		prop.ID = uuid.NewString()
		prop.PermitCount = 1
		prop.CreatedAt = a.now().UTC()
		if err := a.store.UpsertProperty(ctx, prop); err != nil {
			return Result{}, fmt.Errorf("create property: %w", err)
		}
		leadID, err := a.syncLead(ctx, prop)
		if err != nil {
			return Result{}, err
		}
		return Result{PropertyID: prop.ID, LeadID: leadID, Created: true}, nil
	}

	// Most-recent-wins: only a strictly newer permit may overwrite.
	if existing.MostRecentPermitDate != nil && !opened.After(*existing.MostRecentPermitDate) {
		if err := a.store.BumpPermitCount(ctx, existing.ID, a.now().UTC()); err != nil {
			return Result{}, fmt.Errorf("bump permit count: %w", err)
		}
		return Result{PropertyID: existing.ID}, nil
	}

	prop := a.buildProperty(permit, parsed, opened)
	prop.ID = existing.ID
	prop.PermitCount = existing.PermitCount + 1
	prop.CreatedAt = existing.CreatedAt
	if err := a.store.UpsertProperty(ctx, prop); err != nil {
		return Result{}, fmt.Errorf("update property: %w", err)
	}
	leadID, err := a.syncLead(ctx, prop)
	if err != nil {
		return Result{}, err
	}
	return Result{PropertyID: prop.ID, LeadID: leadID}, nil
}

// buildProperty derives every denormalized and scored field from one
// permit, assumed to be the most recent one for the address.
func (a *Aggregator) buildProperty(permit domain.Permit, parsed ParsedAddress, opened time.Time) *domain.Property {
	age := AgeYears(opened, a.now())
	contact := ContactCompleteness(permit.OwnerPhone, permit.OwnerEmail)
	valueTier := ValueTier(permit.PropertyValue)
	tier := Tier(age)
	pipeline, confidence := Route(tier, contact, valueTier)

	return &domain.Property{
		TenantID:          permit.TenantID,
		NormalizedAddress: parsed.Normalized,
		StreetNumber:      parsed.StreetNumber,
		StreetName:        parsed.StreetName,
		StreetSuffix:      parsed.StreetSuffix,
		UnitNumber:        parsed.UnitNumber,
		City:              parsed.City,
		State:             parsed.State,
		ZipCode:           parsed.ZipCode,

		MostRecentPermitID:   permit.ID,
		MostRecentPermitDate: &opened,

		SystemAgeYears: age,
		LeadScore:      Score(age),
		LeadTier:       tier,
		IsQualified:    Qualified(age),

		OwnerName:  permit.OwnerName,
		OwnerPhone: permit.OwnerPhone,
		OwnerEmail: permit.OwnerEmail,

		YearBuilt:     permit.YearBuilt,
		LotSizeSqft:   int(permit.LotSize),
		PropertyValue: permit.PropertyValue,

		ContactCompleteness: contact,
		ValueTier:           valueTier,
		Pipeline:            pipeline,
		PipelineConfidence:  confidence,

		UpdatedAt: a.now().UTC(),
	}
}

// syncLead creates or refreshes the property's single lead. A property
// that fell back under the qualification threshold gets its lead marked
// disqualified (never deleted); one that re-qualifies is cleared.
func (a *Aggregator) syncLead(ctx context.Context, prop *domain.Property) (string, error) {
	now := a.now().UTC()

	existing, err := a.store.LeadByProperty(ctx, prop.ID)
	if err != nil {
		return "", fmt.Errorf("lookup lead: %w", err)
	}

	lead := &domain.Lead{
		TenantID:   prop.TenantID,
		PropertyID: prop.ID,
		PermitID:   prop.MostRecentPermitID,
		LeadScore:  prop.LeadScore,
		LeadTier:   prop.LeadTier,
		SyncStatus: domain.SyncPending,
		UpdatedAt:  now,
	}
	if existing != nil {
		lead.ID = existing.ID
		lead.CreatedAt = existing.CreatedAt
		lead.Notes = existing.Notes
		lead.SyncStatus = existing.SyncStatus
		lead.CRMContactID = existing.CRMContactID
		lead.SyncedAt = existing.SyncedAt
	} else {
		lead.ID = uuid.NewString()
		lead.CreatedAt = now
	}

	if !prop.IsQualified && existing != nil {
		lead.DisqualifiedAt = &now
		lead.DisqualificationReason = fmt.Sprintf(
			"New HVAC installed %s (now %d years old)",
			prop.MostRecentPermitDate.Format("2006-01-02"), prop.SystemAgeYears)
	} else {
		lead.QualificationReason = QualificationReason(prop.SystemAgeYears, prop.PropertyValue)
		lead.Notes = fmt.Sprintf("HVAC system %d years old (%s tier)", prop.SystemAgeYears, prop.LeadTier)
		lead.DisqualifiedAt = nil
		lead.DisqualificationReason = ""
	}

	if err := a.store.UpsertLead(ctx, lead); err != nil {
		return "", fmt.Errorf("upsert lead: %w", err)
	}
	return lead.ID, nil
}
