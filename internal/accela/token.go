package accela

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/secrets"
)

// tokenExpiryMargin: a token this close to expiring counts as expired,
// so a refresh lands before any request can fail mid-flight.
const tokenExpiryMargin = 60 * time.Second

// TokenManager owns the OAuth lifecycle for one tenant's upstream
// connection. Tokens are persisted through the keyring-backed callback
// so they never hit disk in plaintext.
type TokenManager struct {
	hc           *http.Client
	authURL      string
	clientID     string
	clientSecret string
	environment  string
	agency       string

	tokens  secrets.TokenSet
	persist func(secrets.TokenSet) error

	now func() time.Time
}

type TokenConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	Environment  string
	Agency       string
	Timeout      time.Duration
}

func NewTokenManager(cfg TokenConfig, tokens secrets.TokenSet, persist func(secrets.TokenSet) error) *TokenManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if persist == nil {
		persist = func(secrets.TokenSet) error { return nil }
	}
	return &TokenManager{
		hc:           &http.Client{Timeout: cfg.Timeout},
		authURL:      strings.TrimRight(cfg.AuthURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		environment:  cfg.Environment,
		agency:       cfg.Agency,
		tokens:       tokens,
		persist:      persist,
		now:          time.Now,
	}
}

func (m *TokenManager) AccessToken() string   { return m.tokens.AccessToken }
func (m *TokenManager) ExpiresAt() time.Time  { return m.tokens.ExpiresAt }
func (m *TokenManager) HasRefreshToken() bool { return m.tokens.RefreshToken != "" }

// Expired reports whether the access token is missing or within the
// safety margin of its declared expiry.
func (m *TokenManager) Expired() bool {
	if m.tokens.AccessToken == "" || m.tokens.ExpiresAt.IsZero() {
		return true
	}
	return !m.now().Before(m.tokens.ExpiresAt.Add(-tokenExpiryMargin))
}

// EnsureValid refreshes proactively when the token is expired or about
// to be. Long jobs call this again at every period boundary.
func (m *TokenManager) EnsureValid(ctx context.Context) error {
	if !m.Expired() {
		return nil
	}
	return m.Refresh(ctx)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// Refresh exchanges the stored refresh token for a new access token.
// A 400/401 from the token endpoint means the refresh token itself is
// dead: that surfaces as ErrReauthRequired and must not be retried.
func (m *TokenManager) Refresh(ctx context.Context) error {
	if m.tokens.RefreshToken == "" {
		return fmt.Errorf("no refresh token on file: %w", domain.ErrReauthRequired)
	}
	form := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.tokens.RefreshToken},
		"environment":   {m.environment},
	}
	return m.grant(ctx, form)
}

// ExchangeCode completes the authorization-code flow after the consent
// redirect.
func (m *TokenManager) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	form := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"environment":   {m.environment},
	}
	return m.grant(ctx, form)
}

// PasswordGrant connects with resource-owner credentials, for agencies
// that allow it instead of the consent flow.
func (m *TokenManager) PasswordGrant(ctx context.Context, username, password, scope string) error {
	if scope == "" {
		scope = "records"
	}
	form := url.Values{
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
		"agency_name":   {m.agency},
		"environment":   {m.environment},
		"scope":         {scope},
	}
	return m.grant(ctx, form)
}

func (m *TokenManager) grant(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.authURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := m.hc.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint: %w", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	if res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("token endpoint status %d (%s): %w",
			res.StatusCode, grantType(form), domain.ErrReauthRequired)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint status %d (%s)", res.StatusCode, grantType(form))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	next := secrets.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    m.now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}
	// Some grants rotate the refresh token, some omit it; keep the old
	// one when the response has none.
	if next.RefreshToken == "" {
		next.RefreshToken = m.tokens.RefreshToken
	}
	if err := m.persist(next); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	m.tokens = next
	return nil
}

func grantType(form url.Values) string {
	return form.Get("grant_type")
}

// AuthorizeURL builds the consent URL for the authorization-code flow.
func AuthorizeURL(authURL, clientID, redirectURI, agency, environment, state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"agency_name":   {agency},
		"environment":   {environment},
		"scope":         {"records"},
		"state":         {state},
	}
	return strings.TrimRight(authURL, "/") + "/oauth2/authorize?" + q.Encode()
}
