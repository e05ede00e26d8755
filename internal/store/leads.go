package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"permitpulse-engine/internal/domain"
)

const leadCols = `id, tenant_id, property_id, permit_id, lead_score, lead_tier,
qualification_reason, notes, disqualified_at, disqualification_reason,
sync_status, crm_contact_id, synced_at, sync_error, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (domain.Lead, error) {
	var l domain.Lead
	var disqAt, syncedAt, createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.TenantID, &l.PropertyID, &l.PermitID, &l.LeadScore, &l.LeadTier,
		&l.QualificationReason, &l.Notes, &disqAt, &l.DisqualificationReason,
		&l.SyncStatus, &l.CRMContactID, &syncedAt, &l.SyncError, &createdAt, &updatedAt)
	if err != nil {
		return l, err
	}
	l.DisqualifiedAt = parseTime(disqAt)
	l.SyncedAt = parseTime(syncedAt)
	if ts := parseTime(createdAt); ts != nil {
		l.CreatedAt = *ts
	}
	if ts := parseTime(updatedAt); ts != nil {
		l.UpdatedAt = *ts
	}
	return l, nil
}

// LeadByProperty returns (nil, nil) when the property has no lead yet.
func (s *Store) LeadByProperty(ctx context.Context, propertyID string) (*domain.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadCols+` FROM leads WHERE property_id = ?;`, propertyID)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) Lead(ctx context.Context, id string) (domain.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadCols+` FROM leads WHERE id = ?;`, id)
	return scanLead(row)
}

// UpsertLead writes the lead row, resolving conflicts on property_id.
// l.ID is rewritten with the surviving row's id.
func (s *Store) UpsertLead(ctx context.Context, l *domain.Lead) error {
	disqAt := ""
	if l.DisqualifiedAt != nil {
		disqAt = rfc3339(*l.DisqualifiedAt)
	}
	syncedAt := ""
	if l.SyncedAt != nil {
		syncedAt = rfc3339(*l.SyncedAt)
	}
	created := l.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO leads (id, tenant_id, property_id, permit_id, lead_score, lead_tier,
  qualification_reason, notes, disqualified_at, disqualification_reason,
  sync_status, crm_contact_id, synced_at, sync_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (property_id) DO UPDATE SET
  permit_id = excluded.permit_id,
  lead_score = excluded.lead_score,
  lead_tier = excluded.lead_tier,
  qualification_reason = excluded.qualification_reason,
  notes = excluded.notes,
  disqualified_at = excluded.disqualified_at,
  disqualification_reason = excluded.disqualification_reason,
  sync_status = excluded.sync_status,
  crm_contact_id = excluded.crm_contact_id,
  synced_at = excluded.synced_at,
  sync_error = excluded.sync_error,
  updated_at = excluded.updated_at;`,
		l.ID, l.TenantID, l.PropertyID, l.PermitID, l.LeadScore, l.LeadTier,
		l.QualificationReason, l.Notes, disqAt, l.DisqualificationReason,
		l.SyncStatus, l.CRMContactID, syncedAt, l.SyncError,
		rfc3339(created), rfc3339(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert lead for property %s: %w", l.PropertyID, err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM leads WHERE property_id = ?;`, l.PropertyID).Scan(&id)
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

// LeadFilter narrows ListLeads; zero values mean "any".
type LeadFilter struct {
	SyncStatus string
	Tier       string
	Limit      int
	Offset     int
}

func (s *Store) ListLeads(ctx context.Context, tenantID string, f LeadFilter) ([]domain.Lead, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q := `SELECT ` + leadCols + ` FROM leads WHERE tenant_id = ?`
	args := []any{tenantID}
	if f.SyncStatus != "" {
		q += ` AND sync_status = ?`
		args = append(args, f.SyncStatus)
	}
	if f.Tier != "" {
		q += ` AND lead_tier = ?`
		args = append(args, f.Tier)
	}
	q += ` ORDER BY lead_score DESC, id LIMIT ? OFFSET ?;`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// PendingQualifiedLeads returns leads ready for CRM sync: still pending,
// not disqualified, highest score first.
func (s *Store) PendingQualifiedLeads(ctx context.Context, tenantID string, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+leadCols+` FROM leads
WHERE tenant_id = ? AND sync_status = 'pending' AND disqualified_at = ''
ORDER BY lead_score DESC, id LIMIT ?;`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) MarkLeadSynced(ctx context.Context, id, crmContactID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE leads SET sync_status = 'synced', crm_contact_id = ?, synced_at = ?, sync_error = '', updated_at = ?
WHERE id = ?;`,
		crmContactID, rfc3339(now), rfc3339(now), id)
	return err
}

func (s *Store) MarkLeadSyncError(ctx context.Context, id, msg string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE leads SET sync_status = 'error', sync_error = ?, updated_at = ? WHERE id = ?;`,
		msg, rfc3339(now), id)
	return err
}

func (s *Store) UpdateLeadNotes(ctx context.Context, id, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE leads SET notes = ?, updated_at = ? WHERE id = ?;`,
		notes, rfc3339(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrLeadNotFound)
}

func (s *Store) CountLeads(ctx context.Context, tenantID string) (total, pending, synced int, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sync_status, COUNT(*) FROM leads WHERE tenant_id = ? GROUP BY sync_status;`, tenantID)
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return 0, 0, 0, err
		}
		total += n
		switch st {
		case domain.SyncPending:
			pending += n
		case domain.SyncSynced:
			synced += n
		}
	}
	return total, pending, synced, rows.Err()
}
