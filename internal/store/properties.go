package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"permitpulse-engine/internal/domain"
)

const propertyCols = `id, tenant_id, normalized_address,
street_number, street_name, street_suffix, unit_number, city, state, zip_code,
most_recent_permit_id, most_recent_permit_date, system_age_years,
lead_score, lead_tier, is_qualified, owner_name, owner_phone, owner_email,
year_built, lot_size_sqft, property_value, permit_count,
contact_completeness, value_tier, pipeline, pipeline_confidence,
created_at, updated_at`

func scanProperty(row interface{ Scan(...any) error }) (domain.Property, error) {
	var p domain.Property
	var qualified int
	var recentDate, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.TenantID, &p.NormalizedAddress,
		&p.StreetNumber, &p.StreetName, &p.StreetSuffix, &p.UnitNumber, &p.City, &p.State, &p.ZipCode,
		&p.MostRecentPermitID, &recentDate, &p.SystemAgeYears,
		&p.LeadScore, &p.LeadTier, &qualified, &p.OwnerName, &p.OwnerPhone, &p.OwnerEmail,
		&p.YearBuilt, &p.LotSizeSqft, &p.PropertyValue, &p.PermitCount,
		&p.ContactCompleteness, &p.ValueTier, &p.Pipeline, &p.PipelineConfidence,
		&createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.IsQualified = qualified != 0
	p.MostRecentPermitDate = parseTime(recentDate)
	if ts := parseTime(createdAt); ts != nil {
		p.CreatedAt = *ts
	}
	if ts := parseTime(updatedAt); ts != nil {
		p.UpdatedAt = *ts
	}
	return p, nil
}

// PropertyByAddress returns (nil, nil) when the address is unknown.
func (s *Store) PropertyByAddress(ctx context.Context, tenantID, normalized string) (*domain.Property, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+propertyCols+` FROM properties WHERE tenant_id = ? AND normalized_address = ?;`,
		tenantID, normalized)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Property(ctx context.Context, id string) (domain.Property, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+propertyCols+` FROM properties WHERE id = ?;`, id)
	return scanProperty(row)
}

// UpsertProperty writes the full aggregate row, resolving conflicts on
// (tenant_id, normalized_address). After return p.ID holds the id of the
// surviving row, whichever side of the conflict it came from.
func (s *Store) UpsertProperty(ctx context.Context, p *domain.Property) error {
	recent := ""
	if p.MostRecentPermitDate != nil {
		recent = rfc3339(*p.MostRecentPermitDate)
	}
	now := rfc3339(time.Now())

	_, err := s.db.ExecContext(ctx, `
INSERT INTO properties (id, tenant_id, normalized_address,
  street_number, street_name, street_suffix, unit_number, city, state, zip_code,
  most_recent_permit_id, most_recent_permit_date, system_age_years,
  lead_score, lead_tier, is_qualified, owner_name, owner_phone, owner_email,
  year_built, lot_size_sqft, property_value, permit_count,
  contact_completeness, value_tier, pipeline, pipeline_confidence,
  created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, normalized_address) DO UPDATE SET
  street_number = excluded.street_number,
  street_name = excluded.street_name,
  street_suffix = excluded.street_suffix,
  unit_number = excluded.unit_number,
  city = excluded.city,
  state = excluded.state,
  zip_code = excluded.zip_code,
  most_recent_permit_id = excluded.most_recent_permit_id,
  most_recent_permit_date = excluded.most_recent_permit_date,
  system_age_years = excluded.system_age_years,
  lead_score = excluded.lead_score,
  lead_tier = excluded.lead_tier,
  is_qualified = excluded.is_qualified,
  owner_name = excluded.owner_name,
  owner_phone = excluded.owner_phone,
  owner_email = excluded.owner_email,
  year_built = excluded.year_built,
  lot_size_sqft = excluded.lot_size_sqft,
  property_value = excluded.property_value,
  permit_count = excluded.permit_count,
  contact_completeness = excluded.contact_completeness,
  value_tier = excluded.value_tier,
  pipeline = excluded.pipeline,
  pipeline_confidence = excluded.pipeline_confidence,
  updated_at = excluded.updated_at;`,
		p.ID, p.TenantID, p.NormalizedAddress,
		p.StreetNumber, p.StreetName, p.StreetSuffix, p.UnitNumber, p.City, p.State, p.ZipCode,
		p.MostRecentPermitID, recent, p.SystemAgeYears,
		p.LeadScore, p.LeadTier, boolInt(p.IsQualified), p.OwnerName, p.OwnerPhone, p.OwnerEmail,
		p.YearBuilt, p.LotSizeSqft, p.PropertyValue, p.PermitCount,
		p.ContactCompleteness, p.ValueTier, p.Pipeline, p.PipelineConfidence,
		now, now)
	if err != nil {
		return fmt.Errorf("upsert property %q: %w", p.NormalizedAddress, err)
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM properties WHERE tenant_id = ? AND normalized_address = ?;`,
		p.TenantID, p.NormalizedAddress).Scan(&id)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// BumpPermitCount increments the permit tally without rescoring; used
// when an older permit arrives for an already-aggregated address.
func (s *Store) BumpPermitCount(ctx context.Context, propertyID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE properties SET permit_count = permit_count + 1, updated_at = ? WHERE id = ?;`,
		rfc3339(now), propertyID)
	return err
}

// PropertyFilter narrows ListProperties; zero values mean "any".
type PropertyFilter struct {
	Tier      string
	Qualified *bool
	Limit     int
	Offset    int
}

func (s *Store) ListProperties(ctx context.Context, tenantID string, f PropertyFilter) ([]domain.Property, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q := `SELECT ` + propertyCols + ` FROM properties WHERE tenant_id = ?`
	args := []any{tenantID}
	if f.Tier != "" {
		q += ` AND lead_tier = ?`
		args = append(args, f.Tier)
	}
	if f.Qualified != nil {
		q += ` AND is_qualified = ?`
		args = append(args, boolInt(*f.Qualified))
	}
	q += ` ORDER BY lead_score DESC, normalized_address LIMIT ? OFFSET ?;`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PropertyCounts is the per-tier rollup shown on the dashboard.
type PropertyCounts struct {
	Total     int `json:"total"`
	Hot       int `json:"hot"`
	Warm      int `json:"warm"`
	Cool      int `json:"cool"`
	Cold      int `json:"cold"`
	Qualified int `json:"qualified"`
}

func (s *Store) CountProperties(ctx context.Context, tenantID string) (PropertyCounts, error) {
	var c PropertyCounts
	rows, err := s.db.QueryContext(ctx, `
SELECT lead_tier, is_qualified, COUNT(*) FROM properties WHERE tenant_id = ?
GROUP BY lead_tier, is_qualified;`, tenantID)
	if err != nil {
		return c, err
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var qualified, n int
		if err := rows.Scan(&tier, &qualified, &n); err != nil {
			return c, err
		}
		c.Total += n
		if qualified != 0 {
			c.Qualified += n
		}
		switch tier {
		case domain.TierHot:
			c.Hot += n
		case domain.TierWarm:
			c.Warm += n
		case domain.TierCool:
			c.Cool += n
		case domain.TierCold:
			c.Cold += n
		}
	}
	return c, rows.Err()
}
