package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/tokenstore"
)

// RefreshLeeway is how long before expiry an access token is refreshed.
const RefreshLeeway = 60 * time.Second

// rotationTimeout bounds a token rotation, which runs detached from the
// request so a client disconnect cannot leave an invalidated token stored.
const rotationTimeout = 15 * time.Second

// Refresher trades a sealed refresh token for a new token set.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, sealedRefreshToken string) (*models.TokenSet, error)
}

// TenantResolver builds a client per request. Tenants with a stored
// connection get delegated mode; everyone else gets the operator
// credentials from the environment.
type TenantResolver struct {
	defaults  jira.Defaults
	store     tokenstore.Store
	refresher Refresher
	logger    *slog.Logger
	opts      []jira.Option
	now       func() time.Time
}

// NewTenantResolver creates a resolver. store and refresher may be nil,
// in which case only credential mode is used.
func NewTenantResolver(defaults jira.Defaults, store tokenstore.Store, refresher Refresher, logger *slog.Logger, opts ...jira.Option) *TenantResolver {
	return &TenantResolver{
		defaults:  defaults,
		store:     store,
		refresher: refresher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Client returns a client for tenantID. A tenant whose access token is
// about to expire is refreshed first and the rotated tokens are saved.
func (r *TenantResolver) Client(ctx context.Context, tenantID string) (TicketService, error) {
	conn, err := r.connection(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return jira.NewClient(jira.ResolveConfig(r.defaults, nil), r.logger, r.opts...), nil
	}

	cfg := jira.ResolveConfig(r.defaults, &jira.TenantAuth{
		CloudID:       conn.CloudID,
		AccessToken:   conn.Tokens.AccessToken,
		ServiceDeskID: conn.ServiceDeskID,
		RequestTypeID: conn.RequestTypeID,
		ProjectKey:    conn.ProjectKey,
	})
	return jira.NewClient(cfg, r.logger, r.opts...), nil
}

// connection loads the tenant's grant with a usable access token, or nil
// when the tenant has none.
func (r *TenantResolver) connection(ctx context.Context, tenantID string) (*tokenstore.Connection, error) {
	if tenantID == "" || r.store == nil {
		return nil, nil
	}

	conn, err := r.store.Load(ctx, tenantID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.refresher == nil || !conn.Tokens.Expired(r.now(), RefreshLeeway) {
		return conn, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rotationTimeout)
	defer cancel()
	return r.refresh(ctx, tenantID, conn)
}

// refresh rotates the tenant's tokens. The remote service invalidates a
// refresh token on first use, so a failure may mean another instance
// already rotated it: the store is read once more and the newer tokens
// are used, refreshing them if they are also about to expire.
func (r *TenantResolver) refresh(ctx context.Context, tenantID string, conn *tokenstore.Connection) (*tokenstore.Connection, error) {
	tokens, err := r.refresher.RefreshAccessToken(ctx, conn.Tokens.RefreshToken)
	if err == nil {
		return r.save(ctx, tenantID, conn, tokens), nil
	}

	r.logger.Warn("token refresh failed, reloading stored connection",
		"tenant_id", tenantID,
		"error", err,
	)

	latest, loadErr := r.store.Load(ctx, tenantID)
	if loadErr != nil || latest.Tokens.RefreshToken == conn.Tokens.RefreshToken {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	if !latest.Tokens.Expired(r.now(), RefreshLeeway) {
		return latest, nil
	}

	tokens, err = r.refresher.RefreshAccessToken(ctx, latest.Tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	return r.save(ctx, tenantID, latest, tokens), nil
}

// save replaces the stored token set. The new access token is used for the
// current request even if the save fails.
func (r *TenantResolver) save(ctx context.Context, tenantID string, conn *tokenstore.Connection, tokens *models.TokenSet) *tokenstore.Connection {
	updated := *conn
	updated.Tokens = *tokens

	if err := r.store.Save(ctx, tenantID, &updated); err != nil {
		r.logger.Error("failed to save rotated tokens, tenant must reconnect after expiry",
			"tenant_id", tenantID,
			"error", err,
		)
		return &updated
	}

	r.logger.Info("rotated tenant tokens",
		"tenant_id", tenantID,
		"expires_at", updated.Tokens.ExpiresAt,
	)
	return &updated
}
