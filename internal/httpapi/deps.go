package httpapi

import (
	"context"
	"sync/atomic"
	"time"

	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/crm"
	"permitpulse-engine/internal/events"
	"permitpulse-engine/internal/health"
	"permitpulse-engine/internal/store"
)

type Deps struct {
	Store *store.Store

	Hub    *events.Hub
	Health *health.Reporter

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// OAuth flows, injected so handlers stay off the wire in tests.
	AuthorizeURL   func(cfg config.Config, agency, redirectURI, state string) string
	ExchangeCode   func(ctx context.Context, tenantID, agency, code, redirectURI string) (time.Time, error)
	PasswordAuth   func(ctx context.Context, tenantID, agency, username, password string) (time.Time, error)
	TestConnection func(ctx context.Context, tenantID string) error

	// CRM sync entrypoint.
	SyncLeads func(ctx context.Context, tenantID string, limit int) (crm.SyncResult, error)
}
