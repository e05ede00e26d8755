package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"permitpulse-engine/internal/domain"
)

const permitCols = `id, tenant_id, external_id, permit_type, description, opened_date, status,
job_value, property_address, year_built, square_footage, property_value, lot_size,
owner_name, owner_phone, owner_email, raw_json, created_at`

func scanPermit(row interface{ Scan(...any) error }) (domain.Permit, error) {
	var p domain.Permit
	var opened, createdAt string
	err := row.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.PermitType, &p.Description, &opened, &p.Status,
		&p.JobValue, &p.PropertyAddress, &p.YearBuilt, &p.SquareFootage, &p.PropertyValue, &p.LotSize,
		&p.OwnerName, &p.OwnerPhone, &p.OwnerEmail, &p.RawJSON, &createdAt)
	if err != nil {
		return p, err
	}
	p.OpenedDate = parseTime(opened)
	if ts := parseTime(createdAt); ts != nil {
		p.CreatedAt = *ts
	}
	return p, nil
}

// SavePermit upserts on (tenant, external id) and reports whether the row
// was new. Re-pulling a window is idempotent: the second save of the same
// record refreshes the extracted fields and counts as not-inserted.
func (s *Store) SavePermit(ctx context.Context, p *domain.Permit) (inserted bool, err error) {
	opened := ""
	if p.OpenedDate != nil {
		opened = rfc3339(*p.OpenedDate)
	}
	if p.RawJSON == "" {
		p.RawJSON = "{}"
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM permits WHERE tenant_id = ? AND external_id = ?;`,
		p.TenantID, p.ExternalID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		inserted = true
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
	case err != nil:
		return false, err
	default:
		p.ID = existing
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO permits (id, tenant_id, external_id, permit_type, description, opened_date, status,
  job_value, property_address, year_built, square_footage, property_value, lot_size,
  owner_name, owner_phone, owner_email, raw_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tenant_id, external_id) DO UPDATE SET
  permit_type = excluded.permit_type,
  description = excluded.description,
  opened_date = excluded.opened_date,
  status = excluded.status,
  job_value = excluded.job_value,
  property_address = excluded.property_address,
  year_built = excluded.year_built,
  square_footage = excluded.square_footage,
  property_value = excluded.property_value,
  lot_size = excluded.lot_size,
  owner_name = excluded.owner_name,
  owner_phone = excluded.owner_phone,
  owner_email = excluded.owner_email,
  raw_json = excluded.raw_json;`,
		p.ID, p.TenantID, p.ExternalID, p.PermitType, p.Description, opened, p.Status,
		p.JobValue, p.PropertyAddress, p.YearBuilt, p.SquareFootage, p.PropertyValue, p.LotSize,
		p.OwnerName, p.OwnerPhone, p.OwnerEmail, p.RawJSON, rfc3339(time.Now()))
	if err != nil {
		return false, fmt.Errorf("save permit %s: %w", p.ExternalID, err)
	}
	return inserted, nil
}

func (s *Store) Permit(ctx context.Context, id string) (domain.Permit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+permitCols+` FROM permits WHERE id = ?;`, id)
	p, err := scanPermit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, sql.ErrNoRows
	}
	return p, err
}

// ListPermits returns a tenant's permits newest-first.
func (s *Store) ListPermits(ctx context.Context, tenantID string, limit, offset int) ([]domain.Permit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+permitCols+` FROM permits WHERE tenant_id = ?
ORDER BY opened_date DESC, id LIMIT ? OFFSET ?;`,
		tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PermitsOpenedIn streams one calendar year of a tenant's permits, oldest
// first, the order an aggregation rebuild wants to replay them in.
func (s *Store) PermitsOpenedIn(ctx context.Context, tenantID string, year int) ([]domain.Permit, error) {
	from := fmt.Sprintf("%04d-01-01T00:00:00Z", year)
	to := fmt.Sprintf("%04d-01-01T00:00:00Z", year+1)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+permitCols+` FROM permits
WHERE tenant_id = ? AND opened_date >= ? AND opened_date < ?
ORDER BY opened_date, id;`,
		tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PermitYears returns the distinct calendar years a tenant has permits in,
// ascending. Undated permits are reported as year 0.
func (s *Store) PermitYears(ctx context.Context, tenantID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT CAST(substr(opened_date, 1, 4) AS INTEGER) AS y
FROM permits WHERE tenant_id = ? ORDER BY y;`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// UndatedPermits returns permits with no opened_date; a rebuild replays
// them after the dated years.
func (s *Store) UndatedPermits(ctx context.Context, tenantID string) ([]domain.Permit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+permitCols+` FROM permits WHERE tenant_id = ? AND opened_date = '' ORDER BY id;`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountPermits(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permits WHERE tenant_id = ?;`, tenantID).Scan(&n)
	return n, err
}
