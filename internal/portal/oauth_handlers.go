package portal

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cragr/supportdesk/internal/tokenstore"
)

const (
	stateCookie    = "oauth_state"
	stateCookieTTL = 10 * time.Minute
	callbackPath   = "/oauth/callback"
)

// delegatedEnabled aborts with 503 when the OAuth flow is unavailable.
func (h *Handler) delegatedEnabled(c *gin.Context) bool {
	if h.oauth == nil || h.store == nil || !h.oauth.Configured() {
		abortError(c, http.StatusServiceUnavailable, codeOAuthNotConfigured, "site connection is not configured")
		return false
	}
	return true
}

// connect starts the authorization code flow. The state is bound to the
// browser with a short-lived cookie.
func (h *Handler) connect(c *gin.Context) {
	if !h.delegatedEnabled(c) {
		return
	}

	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, int(stateCookieTTL.Seconds()), callbackPath, "", h.SecureCookies, true)

	c.Redirect(http.StatusFound, h.oauth.AuthorizeURL(state, ""))
}

// callback completes the flow: the code is exchanged, the first accessible
// site is chosen and the connection is stored for the caller's tenant.
func (h *Handler) callback(c *gin.Context) {
	if !h.delegatedEnabled(c) {
		return
	}

	id := identity(c)
	if id.TenantID == "" {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "no tenant selected")
		return
	}

	state, err := c.Cookie(stateCookie)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, "", -1, callbackPath, "", h.SecureCookies, true)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(c.Query("state"))) != 1 {
		h.logger.Warn("oauth callback state mismatch",
			"tenant_id", id.TenantID,
		)
		abortError(c, http.StatusBadRequest, codeStateMismatch, "authorization state did not match")
		return
	}

	if denied := c.Query("error"); denied != "" {
		h.logger.Info("site connection declined",
			"tenant_id", id.TenantID,
			"reason", denied,
		)
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "authorization was declined")
		return
	}

	code := c.Query("code")
	if code == "" {
		abortError(c, http.StatusBadRequest, codeInvalidRequest, "authorization code is required")
		return
	}

	ctx := c.Request.Context()

	tokens, err := h.oauth.ExchangeCode(ctx, code, "")
	if err != nil {
		h.logger.Error("failed to exchange authorization code",
			"tenant_id", id.TenantID,
			"error", err,
		)
		respondError(c, err)
		return
	}

	sites, err := h.oauth.DiscoverSites(ctx, tokens.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(sites) == 0 {
		h.oauth.Revoke(ctx, tokens.RefreshToken)
		abortError(c, http.StatusBadRequest, codeNoSites, "the grant gives access to no sites")
		return
	}
	site := sites[0]

	conn := &tokenstore.Connection{
		CloudID:     site.ID,
		SiteURL:     site.URL,
		SiteName:    site.Name,
		Tokens:      *tokens,
		ConnectedAt: time.Now().UTC(),
	}
	if previous, err := h.store.Load(ctx, id.TenantID); err == nil && previous.CloudID == site.ID {
		conn.ServiceDeskID = previous.ServiceDeskID
		conn.RequestTypeID = previous.RequestTypeID
		conn.ProjectKey = previous.ProjectKey
	}

	if err := h.store.Save(ctx, id.TenantID, conn); err != nil {
		h.logger.Error("failed to save site connection",
			"tenant_id", id.TenantID,
			"error", err,
		)
		abortError(c, http.StatusInternalServerError, codeInternal, "failed to save connection")
		return
	}

	h.logger.Info("connected site",
		"tenant_id", id.TenantID,
		"cloud_id", site.ID,
		"site_url", site.URL,
		"staff_user_id", id.UserID,
	)

	c.JSON(http.StatusOK, connectionStatus(conn))
}

func connectionStatus(conn *tokenstore.Connection) gin.H {
	if conn == nil {
		return gin.H{"connected": false}
	}
	return gin.H{
		"connected":   true,
		"cloudId":     conn.CloudID,
		"siteUrl":     conn.SiteURL,
		"siteName":    conn.SiteName,
		"connectedAt": conn.ConnectedAt,
	}
}

func (h *Handler) status(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, connectionStatus(nil))
		return
	}

	conn, err := h.store.Load(c.Request.Context(), identity(c).TenantID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		c.JSON(http.StatusOK, connectionStatus(nil))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, connectionStatus(conn))
}

// disconnect revokes the tenant's grant and removes it. Revocation is best
// effort; the stored grant is removed either way.
func (h *Handler) disconnect(c *gin.Context) {
	if !h.delegatedEnabled(c) {
		return
	}

	ctx := c.Request.Context()
	id := identity(c)

	conn, err := h.store.Load(ctx, id.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.oauth.Revoke(ctx, conn.Tokens.RefreshToken)

	if err := h.store.Delete(ctx, id.TenantID); err != nil {
		h.logger.Error("failed to delete site connection",
			"tenant_id", id.TenantID,
			"error", err,
		)
		abortError(c, http.StatusInternalServerError, codeInternal, "failed to remove connection")
		return
	}

	h.logger.Info("disconnected site",
		"tenant_id", id.TenantID,
		"cloud_id", conn.CloudID,
		"staff_user_id", id.UserID,
	)
	c.JSON(http.StatusOK, gin.H{"connected": false})
}
