package domain

import "time"

// CRM sync states for a lead.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// Lead is the sales-routing record for a property, at most one per
// property. Disqualification never deletes the row; it stamps the audit
// fields, and a later qualifying permit clears them again.
type Lead struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	PropertyID string `json:"property_id"`
	PermitID   string `json:"permit_id,omitempty"`

	LeadScore int    `json:"lead_score"`
	LeadTier  string `json:"lead_tier"`

	QualificationReason    string     `json:"qualification_reason,omitempty"`
	Notes                  string     `json:"notes,omitempty"`
	DisqualifiedAt         *time.Time `json:"disqualified_at,omitempty"`
	DisqualificationReason string     `json:"disqualification_reason,omitempty"`

	SyncStatus   string     `json:"sync_status"`
	CRMContactID string     `json:"crm_contact_id,omitempty"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	SyncError    string     `json:"sync_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
