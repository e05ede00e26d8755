package domain

import "time"

// Tenant connection states.
const (
	TenantConnected    = "connected"
	TenantDisconnected = "disconnected"
	TenantError        = "error"
)

// Tenant is one customer scope (a county/agency in the upstream system).
// OAuth material lives in the OS keyring, never on this row; the row only
// records whether a refresh token exists and when it expires.
type Tenant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AgencyCode string `json:"agency_code"`

	Status         string     `json:"status"`
	Authorized     bool       `json:"oauth_authorized"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	AutoPullEnabled bool       `json:"auto_pull_enabled"`
	NextPullAt      *time.Time `json:"next_pull_at,omitempty"`
	LastPullAt      *time.Time `json:"last_pull_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
