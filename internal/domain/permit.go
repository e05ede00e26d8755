package domain

import "time"

// Permit is one ingested record, unique per (tenant, external record id).
// Extracted fields are best-effort; RawJSON keeps the upstream payload so a
// later aggregation_rebuild can re-derive everything.
type Permit struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ExternalID string `json:"external_record_id"`

	PermitType  string     `json:"permit_type,omitempty"`
	Description string     `json:"description,omitempty"`
	OpenedDate  *time.Time `json:"opened_date,omitempty"`
	Status      string     `json:"status,omitempty"`
	JobValue    float64    `json:"job_value,omitempty"`

	PropertyAddress string  `json:"property_address,omitempty"`
	YearBuilt       int     `json:"year_built,omitempty"`
	SquareFootage   int     `json:"square_footage,omitempty"`
	PropertyValue   float64 `json:"property_value,omitempty"`
	LotSize         float64 `json:"lot_size,omitempty"`

	OwnerName  string `json:"owner_name,omitempty"`
	OwnerPhone string `json:"owner_phone,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`

	RawJSON   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
