// Package oauth manages delegated (three-legged) OAuth grants: building
// the consent URL, exchanging codes, refreshing rotating refresh tokens,
// discovering sites and revoking grants.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
)

// Audience is the API audience requested at consent.
const Audience = "api.atlassian.com"

// RefreshTimeout bounds a refresh grant. The grant is not tied to the
// caller's context.
const RefreshTimeout = 15 * time.Second

// Scopes are requested on every connection attempt.
var Scopes = []string{
	"read:jira-work",
	"write:jira-work",
	"read:jira-user",
	"read:servicedesk-request",
	"write:servicedesk-request",
	"offline_access",
}

// Endpoints are the OAuth service URLs.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	RevokeURL    string
	ResourcesURL string
}

// DefaultEndpoints are the production Atlassian endpoints.
var DefaultEndpoints = Endpoints{
	AuthorizeURL: "https://auth.atlassian.com/authorize",
	TokenURL:     "https://auth.atlassian.com/oauth/token",
	RevokeURL:    "https://auth.atlassian.com/oauth/revoke",
	ResourcesURL: "https://api.atlassian.com/oauth/token/accessible-resources",
}

// Config holds the registered OAuth application.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoints    Endpoints
}

// Manager runs the OAuth lifecycle. Refresh tokens only ever leave it in
// sealed form.
//
// Refreshing is not idempotent: the service invalidates a refresh token on
// use. Concurrent refreshes of the same sealed token within one Manager
// share a single remote call. Refreshes from separate processes are not
// coordinated; callers that hit a failed refresh should reload the stored
// token and retry once.
type Manager struct {
	cfg       Config
	exec      *remote.Executor
	cipher    *Cipher
	logger    *slog.Logger
	metrics   *Metrics
	refreshes singleflight.Group
	now       func() time.Time
}

type options struct {
	httpClient    *http.Client
	remoteMetrics *remote.Metrics
	metrics       *Metrics
	now           func() time.Time
}

// Option customizes a Manager.
type Option func(*options)

// WithHTTPClient sets the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRemoteMetrics records token endpoint calls alongside API calls.
func WithRemoteMetrics(m *remote.Metrics) Option {
	return func(o *options) { o.remoteMetrics = m }
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source used to compute expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewManager creates a Manager. Endpoints left empty take their defaults.
func NewManager(cfg Config, cipher *Cipher, logger *slog.Logger, opts ...Option) *Manager {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Endpoints.AuthorizeURL == "" {
		cfg.Endpoints.AuthorizeURL = DefaultEndpoints.AuthorizeURL
	}
	if cfg.Endpoints.TokenURL == "" {
		cfg.Endpoints.TokenURL = DefaultEndpoints.TokenURL
	}
	if cfg.Endpoints.RevokeURL == "" {
		cfg.Endpoints.RevokeURL = DefaultEndpoints.RevokeURL
	}
	if cfg.Endpoints.ResourcesURL == "" {
		cfg.Endpoints.ResourcesURL = DefaultEndpoints.ResourcesURL
	}

	return &Manager{
		cfg:     cfg,
		exec:    remote.NewExecutor(o.httpClient, logger, o.remoteMetrics),
		cipher:  cipher,
		logger:  logger,
		metrics: o.metrics,
		now:     o.now,
	}
}

// Configured reports whether an OAuth application and token cipher are set.
func (m *Manager) Configured() bool {
	return m.cfg.ClientID != "" && m.cfg.ClientSecret != "" && m.cipher != nil
}

func (m *Manager) oauth2Config(redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = m.cfg.RedirectURL
	}
	return &oauth2.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.cfg.Endpoints.AuthorizeURL,
			TokenURL:  m.cfg.Endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL builds the consent URL. The same inputs always produce the
// same URL. Consent is requested on every attempt.
func (m *Manager) AuthorizeURL(state, callbackURL string) string {
	return m.oauth2Config(callbackURL).AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", Audience),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// ExchangeCode trades an authorization code for a token set. The grant is
// posted as JSON; if the token endpoint answers 401 it is retried once
// form-encoded before the failure is returned.
func (m *Manager) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error) {
	const op = "exchange_code"

	if !m.Configured() {
		return nil, remote.NewError(remote.KindNotConfigured, op, nil)
	}
	if redirectURI == "" {
		redirectURI = m.cfg.RedirectURL
	}

	var resp tokenResponse
	err := m.postJSON(ctx, op, m.cfg.Endpoints.TokenURL, map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
		"code":          code,
		"redirect_uri":  redirectURI,
	}, &resp)

	if remote.StatusCode(err) == http.StatusUnauthorized {
		m.logger.Warn("token endpoint rejected JSON grant, retrying form-encoded",
			"operation", op,
		)
		resp, err = m.exchangeForm(ctx, code, redirectURI)
	}
	if err != nil {
		return nil, err
	}

	return m.tokenSet(resp, "")
}

// exchangeForm posts the code grant form-encoded through the oauth2 package.
func (m *Manager) exchangeForm(ctx context.Context, code, redirectURI string) (tokenResponse, error) {
	const op = "exchange_code_form"

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.exec.HTTPClient())
	tok, err := m.oauth2Config(redirectURI).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			m.logger.Warn("remote API rejected request",
				"operation", op,
				"status_code", retrieveErr.Response.StatusCode,
			)
			return tokenResponse{}, &remote.Error{
				Kind:       remote.KindRemoteRejected,
				Op:         op,
				StatusCode: retrieveErr.Response.StatusCode,
			}
		}
		return tokenResponse{}, remote.NewError(remote.KindTransport, op, nil)
	}

	resp := tokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp, nil
}

// RefreshAccessToken trades a sealed refresh token for a new token set.
// The returned RefreshToken is the newly issued one, sealed; it replaces
// the stored token, which the service has now invalidated.
func (m *Manager) RefreshAccessToken(ctx context.Context, sealedRefreshToken string) (*models.TokenSet, error) {
	if !m.Configured() {
		return nil, remote.NewError(remote.KindNotConfigured, "refresh_token", nil)
	}

	// The flight outlives any one caller: once the service has rotated the
	// token, the result must reach the callers still waiting for it.
	ch := m.refreshes.DoChan(sealedRefreshToken, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return m.refresh(rctx, sealedRefreshToken)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, remote.NewError(remote.KindTransport, "refresh_token", ctx.Err())
	}
	if res.Err != nil {
		m.metrics.refreshed("failure")
		m.logger.Warn("access token refresh failed",
			"error", res.Err,
			"shared", res.Shared,
		)
		return nil, res.Err
	}

	m.metrics.refreshed("success")
	tokens := *res.Val.(*models.TokenSet)
	return &tokens, nil
}

func (m *Manager) refresh(ctx context.Context, sealedRefreshToken string) (*models.TokenSet, error) {
	refreshToken, err := m.cipher.Open(sealedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}

	var resp tokenResponse
	err = m.postJSON(ctx, "refresh_token", m.cfg.Endpoints.TokenURL, map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.ClientSecret,
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return nil, err
	}

	m.logger.Info("refreshed access token",
		"expires_in", resp.ExpiresIn,
	)
	return m.tokenSet(resp, sealedRefreshToken)
}

// tokenSet seals the refresh token of resp. When the response carries no
// refresh token the previous sealed value is kept.
func (m *Manager) tokenSet(resp tokenResponse, previousSealed string) (*models.TokenSet, error) {
	tokens := &models.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: previousSealed,
		ExpiresIn:    resp.ExpiresIn,
		Scope:        resp.Scope,
	}
	if resp.ExpiresIn > 0 {
		tokens.ExpiresAt = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}

	if resp.RefreshToken != "" {
		sealed, err := m.cipher.Seal(resp.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to seal refresh token: %w", err)
		}
		tokens.RefreshToken = sealed
	}
	return tokens, nil
}

// DiscoverSites lists the sites the access token can reach. The site id is
// the cloud id used to route every delegated API call.
func (m *Manager) DiscoverSites(ctx context.Context, accessToken string) ([]models.Site, error) {
	var sites []models.Site
	err := m.exec.Do(ctx, remote.Request{
		Operation:     "discover_sites",
		Method:        http.MethodGet,
		URL:           m.cfg.Endpoints.ResourcesURL,
		Authorization: "Bearer " + accessToken,
	}, &sites)
	if err != nil {
		return nil, err
	}
	if sites == nil {
		sites = []models.Site{}
	}
	return sites, nil
}

// Revoke invalidates a grant. It is best effort: failures are logged and
// never returned so that disconnecting always completes.
func (m *Manager) Revoke(ctx context.Context, sealedRefreshToken string) {
	const op = "revoke_token"

	if !m.Configured() || sealedRefreshToken == "" {
		return
	}

	refreshToken, err := m.cipher.Open(sealedRefreshToken)
	if err != nil {
		m.logger.Warn("skipping revoke of unreadable refresh token",
			"operation", op,
		)
		return
	}

	err = m.postJSON(ctx, op, m.cfg.Endpoints.RevokeURL, map[string]string{
		"token":           refreshToken,
		"token_type_hint": "refresh_token",
		"client_id":       m.cfg.ClientID,
		"client_secret":   m.cfg.ClientSecret,
	}, nil)
	if err != nil {
		m.logger.Warn("token revocation failed",
			"operation", op,
			"error_kind", remote.KindOf(err).String(),
			"status_code", remote.StatusCode(err),
		)
		return
	}

	m.logger.Info("revoked refresh token")
}

func (m *Manager) postJSON(ctx context.Context, op, url string, payload map[string]string, out any) error {
	body, err := remote.JSONBody(payload)
	if err != nil {
		return remote.NewError(remote.KindTransport, op, err)
	}

	return m.exec.Do(ctx, remote.Request{
		Operation:   op,
		Method:      http.MethodPost,
		URL:         url,
		Body:        body,
		ContentType: "application/json",
	}, out)
}
