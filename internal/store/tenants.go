package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"permitpulse-engine/internal/domain"
)

const tenantCols = `id, name, agency_code, status, oauth_authorized, token_expires_at,
auto_pull_enabled, next_pull_at, last_pull_at, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (domain.Tenant, error) {
	var t domain.Tenant
	var authorized, autoPull int
	var tokenExp, nextPull, lastPull, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Name, &t.AgencyCode, &t.Status, &authorized, &tokenExp,
		&autoPull, &nextPull, &lastPull, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.Authorized = authorized != 0
	t.AutoPullEnabled = autoPull != 0
	t.TokenExpiresAt = parseTime(tokenExp)
	t.NextPullAt = parseTime(nextPull)
	t.LastPullAt = parseTime(lastPull)
	if ts := parseTime(createdAt); ts != nil {
		t.CreatedAt = *ts
	}
	if ts := parseTime(updatedAt); ts != nil {
		t.UpdatedAt = *ts
	}
	return t, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	now := rfc3339(time.Now())
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tenants (id, name, agency_code, status, auto_pull_enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?);`,
		t.ID, t.Name, t.AgencyCode, domain.TenantDisconnected, boolInt(t.AutoPullEnabled), now, now)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *Store) Tenant(ctx context.Context, id string) (domain.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id = ?;`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrTenantNotFound
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY created_at;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTenant rewrites the operator-editable fields. Connection state
// and pull bookkeeping are owned by their dedicated setters.
func (s *Store) UpdateTenant(ctx context.Context, t *domain.Tenant) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tenants SET name = ?, agency_code = ?, auto_pull_enabled = ?, updated_at = ?
WHERE id = ?;`,
		t.Name, t.AgencyCode, boolInt(t.AutoPullEnabled), rfc3339(time.Now()), t.ID)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrTenantNotFound)
}

// MarkTenantConnected records a successful authorization.
func (s *Store) MarkTenantConnected(ctx context.Context, id string, tokenExpiresAt time.Time) error {
	return s.setTenantStatus(ctx, id, domain.TenantConnected, true, rfc3339(tokenExpiresAt))
}

// MarkTenantDisconnected is the ReauthRequired path: the connection is
// dead until an operator re-authorizes out of band.
func (s *Store) MarkTenantDisconnected(ctx context.Context, id string) error {
	return s.setTenantStatus(ctx, id, domain.TenantDisconnected, false, "")
}

func (s *Store) setTenantStatus(ctx context.Context, id, status string, authorized bool, tokenExp string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tenants SET status = ?, oauth_authorized = ?, token_expires_at = ?, updated_at = ?
WHERE id = ?;`,
		status, boolInt(authorized), tokenExp, rfc3339(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrTenantNotFound)
}

func (s *Store) SetTenantAutoPull(ctx context.Context, id string, enabled bool, nextPullAt time.Time) error {
	next := ""
	if !nextPullAt.IsZero() {
		next = rfc3339(nextPullAt)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tenants SET auto_pull_enabled = ?, next_pull_at = ?, updated_at = ? WHERE id = ?;`,
		boolInt(enabled), next, rfc3339(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrTenantNotFound)
}

func (s *Store) TouchTenantPull(ctx context.Context, id string, pulledAt, nextPullAt time.Time) error {
	next := ""
	if !nextPullAt.IsZero() {
		next = rfc3339(nextPullAt)
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE tenants SET last_pull_at = ?, next_pull_at = ?, updated_at = ? WHERE id = ?;`,
		rfc3339(pulledAt), next, rfc3339(time.Now()), id)
	return err
}

// TenantsDueForPull returns connected tenants whose auto-pull is on and
// whose next_pull_at has passed.
func (s *Store) TenantsDueForPull(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+tenantCols+` FROM tenants
WHERE auto_pull_enabled = 1 AND status = 'connected'
  AND next_pull_at != '' AND next_pull_at <= ?
ORDER BY next_pull_at;`, rfc3339(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?;`, id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrTenantNotFound)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
