package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

// Service groups the engine's secrets in the OS keychain.
const Service = "permitpulse"

var ErrNotFound = errors.New("secret not found")

// ClientSecret returns the upstream OAuth client secret: keychain first,
// PERMITPULSE_CLIENT_SECRET env as the headless fallback.
func ClientSecret() (string, error) {
	if s, err := keyring.Get(Service, "accela:client_secret"); err == nil && strings.TrimSpace(s) != "" {
		return s, nil
	}
	if s := strings.TrimSpace(os.Getenv("PERMITPULSE_CLIENT_SECRET")); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("accela client secret: %w", ErrNotFound)
}

func SetClientSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("client secret is empty")
	}
	return keyring.Set(Service, "accela:client_secret", secret)
}

// CRMToken returns the CRM private-integration token.
func CRMToken() (string, error) {
	if s, err := keyring.Get(Service, "crm:access_token"); err == nil && strings.TrimSpace(s) != "" {
		return s, nil
	}
	if s := strings.TrimSpace(os.Getenv("PERMITPULSE_CRM_TOKEN")); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("crm access token: %w", ErrNotFound)
}

func SetCRMToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("crm token is empty")
	}
	return keyring.Set(Service, "crm:access_token", token)
}

// TokenSet is the per-tenant OAuth material kept at rest in the keychain
// rather than in sqlite.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func tenantAccount(tenantID string) string {
	return "accela:tokens:" + tenantID
}

func LoadTokens(tenantID string) (TokenSet, error) {
	raw, err := keyring.Get(Service, tenantAccount(tenantID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return TokenSet{}, fmt.Errorf("tokens for tenant %s: %w", tenantID, ErrNotFound)
		}
		return TokenSet{}, err
	}
	var ts TokenSet
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return TokenSet{}, fmt.Errorf("decode tokens for tenant %s: %w", tenantID, err)
	}
	return ts, nil
}

func SaveTokens(tenantID string, ts TokenSet) error {
	if strings.TrimSpace(tenantID) == "" {
		return errors.New("tenant id is empty")
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return keyring.Set(Service, tenantAccount(tenantID), string(b))
}

func DeleteTokens(tenantID string) error {
	err := keyring.Delete(Service, tenantAccount(tenantID))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
