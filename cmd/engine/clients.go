package main

import (
	"context"
	"errors"
	"fmt"

	"permitpulse-engine/internal/accela"
	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/secrets"
	"permitpulse-engine/internal/worker"
)

// tokenManagerFor assembles a token manager for one tenant from config
// and the keyring-held secrets.
func tokenManagerFor(cfg config.Config, tenantID, agency string) (*accela.TokenManager, error) {
	clientSecret, err := secrets.ClientSecret()
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return nil, fmt.Errorf("no client secret configured: %w", domain.ErrReauthRequired)
		}
		return nil, err
	}

	tokens, err := secrets.LoadTokens(tenantID)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return nil, err
	}

	return accela.NewTokenManager(accela.TokenConfig{
		AuthURL:      cfg.Accela.AuthURL,
		ClientID:     cfg.Accela.ClientID,
		ClientSecret: clientSecret,
		Environment:  cfg.Accela.Environment,
		Agency:       agency,
	}, tokens, func(ts secrets.TokenSet) error {
		return secrets.SaveTokens(tenantID, ts)
	}), nil
}

func buildAccelaClient(ctx context.Context, cfg config.Config, tenant domain.Tenant) (*accela.Client, error) {
	tm, err := tokenManagerFor(cfg, tenant.ID, tenant.AgencyCode)
	if err != nil {
		return nil, err
	}
	if err := tm.EnsureValid(ctx); err != nil {
		return nil, err
	}

	rl := accela.NewRateLimiter(cfg.Accela.RateThreshold,
		cfg.Accela.PaginationPerSec, cfg.Accela.EnrichmentPerSec)

	return accela.NewClient(accela.ClientConfig{
		BaseURL:    cfg.Accela.BaseURL,
		Agency:     tenant.AgencyCode,
		Timeout:    cfg.RequestTimeout(),
		MaxRetries: cfg.Accela.MaxRetries,
	}, tm, rl), nil
}

// upstreamClient adapts *accela.Client to the worker's Client interface;
// only the Records return type needs the shim.
type upstreamClient struct {
	*accela.Client
}

func (u upstreamClient) Records(q accela.Query, offset int) worker.RecordIterator {
	return u.Client.Records(q, offset)
}

func buildClient(ctx context.Context, cfg config.Config, tenant domain.Tenant) (worker.Client, error) {
	c, err := buildAccelaClient(ctx, cfg, tenant)
	if err != nil {
		return nil, err
	}
	return upstreamClient{c}, nil
}
