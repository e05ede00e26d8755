package store

import "context"

// Migrate brings the schema up to date, gated on PRAGMA user_version.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  agency_code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'disconnected'
    CHECK (status IN ('connected','disconnected','error')),
  oauth_authorized INTEGER NOT NULL DEFAULT 0,
  token_expires_at TEXT NOT NULL DEFAULT '',
  auto_pull_enabled INTEGER NOT NULL DEFAULT 0,
  next_pull_at TEXT NOT NULL DEFAULT '',
  last_pull_at TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  job_type TEXT NOT NULL
    CHECK (job_type IN ('initial_pull','incremental_pull','aggregation_rebuild')),
  status TEXT NOT NULL
    CHECK (status IN ('pending','running','completed','failed','cancelled')),
  parameters TEXT NOT NULL DEFAULT '{}',
  records_pulled INTEGER NOT NULL DEFAULT 0,
  records_saved INTEGER NOT NULL DEFAULT 0,
  properties_created INTEGER NOT NULL DEFAULT 0,
  properties_updated INTEGER NOT NULL DEFAULT 0,
  leads_created INTEGER NOT NULL DEFAULT 0,
  current_period INTEGER NOT NULL DEFAULT 0,
  progress_percent INTEGER NOT NULL DEFAULT 0,
  elapsed_seconds INTEGER NOT NULL DEFAULT 0,
  records_per_second REAL NOT NULL DEFAULT 0,
  eta TEXT NOT NULL DEFAULT '',
  periods_done TEXT NOT NULL DEFAULT '{}',
  retry_count INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3,
  error_message TEXT NOT NULL DEFAULT '',
  error_kind TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  started_at TEXT NOT NULL DEFAULT '',
  completed_at TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS permits (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  permit_type TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  opened_date TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT '',
  job_value REAL NOT NULL DEFAULT 0,
  property_address TEXT NOT NULL DEFAULT '',
  year_built INTEGER NOT NULL DEFAULT 0,
  square_footage INTEGER NOT NULL DEFAULT 0,
  property_value REAL NOT NULL DEFAULT 0,
  lot_size REAL NOT NULL DEFAULT 0,
  owner_name TEXT NOT NULL DEFAULT '',
  owner_phone TEXT NOT NULL DEFAULT '',
  owner_email TEXT NOT NULL DEFAULT '',
  raw_json TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL,
  UNIQUE (tenant_id, external_id)
);
CREATE INDEX IF NOT EXISTS idx_permits_tenant_opened ON permits(tenant_id, opened_date);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS properties (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  normalized_address TEXT NOT NULL,
  street_number TEXT NOT NULL DEFAULT '',
  street_name TEXT NOT NULL DEFAULT '',
  street_suffix TEXT NOT NULL DEFAULT '',
  unit_number TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT '',
  zip_code TEXT NOT NULL DEFAULT '',
  most_recent_permit_id TEXT NOT NULL DEFAULT '',
  most_recent_permit_date TEXT NOT NULL DEFAULT '',
  system_age_years INTEGER NOT NULL DEFAULT 0,
  lead_score INTEGER NOT NULL DEFAULT 0,
  lead_tier TEXT NOT NULL DEFAULT 'COLD',
  is_qualified INTEGER NOT NULL DEFAULT 0,
  owner_name TEXT NOT NULL DEFAULT '',
  owner_phone TEXT NOT NULL DEFAULT '',
  owner_email TEXT NOT NULL DEFAULT '',
  year_built INTEGER NOT NULL DEFAULT 0,
  lot_size_sqft INTEGER NOT NULL DEFAULT 0,
  property_value REAL NOT NULL DEFAULT 0,
  permit_count INTEGER NOT NULL DEFAULT 0,
  contact_completeness TEXT NOT NULL DEFAULT 'minimal',
  value_tier TEXT NOT NULL DEFAULT 'standard',
  pipeline TEXT NOT NULL DEFAULT '',
  pipeline_confidence INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE (tenant_id, normalized_address)
);
CREATE INDEX IF NOT EXISTS idx_properties_tenant_tier ON properties(tenant_id, lead_tier);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS leads (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  property_id TEXT NOT NULL UNIQUE,
  permit_id TEXT NOT NULL DEFAULT '',
  lead_score INTEGER NOT NULL DEFAULT 0,
  lead_tier TEXT NOT NULL DEFAULT 'COLD',
  qualification_reason TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  disqualified_at TEXT NOT NULL DEFAULT '',
  disqualification_reason TEXT NOT NULL DEFAULT '',
  sync_status TEXT NOT NULL DEFAULT 'pending'
    CHECK (sync_status IN ('pending','synced','error')),
  crm_contact_id TEXT NOT NULL DEFAULT '',
  synced_at TEXT NOT NULL DEFAULT '',
  sync_error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_sync ON leads(tenant_id, sync_status);
`); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}
