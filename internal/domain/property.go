package domain

import "time"

// Lead tiers, partitioned on system age in whole years.
const (
	TierHot  = "HOT"  // >= 15 years
	TierWarm = "WARM" // 10-15 years
	TierCool = "COOL" // 5-10 years
	TierCold = "COLD" // < 5 years
)

// Contact completeness buckets.
const (
	ContactComplete = "complete"
	ContactPartial  = "partial"
	ContactMinimal  = "minimal"
)

// Property value tiers.
const (
	ValueUltraHigh = "ultra_high"
	ValueHigh      = "high"
	ValueMedium    = "medium"
	ValueStandard  = "standard"
)

// Property is the aggregate for one physical address within a tenant,
// unique per (tenant, normalized address). The MostRecent* fields are
// denormalized from the latest-dated permit seen so far and only ever
// move forward in time.
type Property struct {
	ID                string `json:"id"`
	TenantID          string `json:"tenant_id"`
	NormalizedAddress string `json:"normalized_address"`

	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	StreetSuffix string `json:"street_suffix,omitempty"`
	UnitNumber   string `json:"unit_number,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`

	MostRecentPermitID   string     `json:"most_recent_permit_id,omitempty"`
	MostRecentPermitDate *time.Time `json:"most_recent_permit_date,omitempty"`

	SystemAgeYears int    `json:"system_age_years"`
	LeadScore      int    `json:"lead_score"`
	LeadTier       string `json:"lead_tier"`
	IsQualified    bool   `json:"is_qualified"`

	OwnerName  string `json:"owner_name,omitempty"`
	OwnerPhone string `json:"owner_phone,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`

	YearBuilt     int     `json:"year_built,omitempty"`
	LotSizeSqft   int     `json:"lot_size_sqft,omitempty"`
	PropertyValue float64 `json:"property_value,omitempty"`

	PermitCount int `json:"permit_count"`

	ContactCompleteness string `json:"contact_completeness"`
	ValueTier           string `json:"value_tier"`
	Pipeline            string `json:"pipeline"`
	PipelineConfidence  int    `json:"pipeline_confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
