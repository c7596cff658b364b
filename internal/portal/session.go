package portal

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Identity is the signed-in portal user.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
	Email       string
	ServerID    string
	TenantID    string
	Staff       bool
}

// Session resolves the caller's identity and checks CSRF tokens. It is
// provided by the portal's session layer.
type Session interface {
	Identity(r *http.Request) (*Identity, bool)
	ValidCSRF(r *http.Request) bool
}

// Trusted-proxy headers read by HeaderSession.
const (
	HeaderUserID      = "X-Portal-User-Id"
	HeaderUsername    = "X-Portal-Username"
	HeaderDisplayName = "X-Portal-Display-Name"
	HeaderEmail       = "X-Portal-Email"
	HeaderServerID    = "X-Portal-Server-Id"
	HeaderTenantID    = "X-Portal-Tenant-Id"
	HeaderStaff       = "X-Portal-Staff"
	HeaderCSRF        = "X-CSRF-Token"
	CSRFCookie        = "csrf_token"
)

// HeaderSession reads the identity from headers set by an authenticating
// proxy in front of the service and checks CSRF with a double-submit
// cookie. It must only be used when the proxy strips these headers from
// client requests.
type HeaderSession struct{}

func (HeaderSession) Identity(r *http.Request) (*Identity, bool) {
	id := &Identity{
		UserID:      r.Header.Get(HeaderUserID),
		Username:    r.Header.Get(HeaderUsername),
		DisplayName: r.Header.Get(HeaderDisplayName),
		Email:       r.Header.Get(HeaderEmail),
		ServerID:    r.Header.Get(HeaderServerID),
		TenantID:    r.Header.Get(HeaderTenantID),
		Staff:       r.Header.Get(HeaderStaff) == "true",
	}
	if id.UserID == "" {
		return nil, false
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Username
	}
	return id, true
}

func (HeaderSession) ValidCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(HeaderCSRF)
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}

const identityKey = "portal.identity"

// requireIdentity aborts with 401 when no user is signed in, and with 403
// when an unsafe method carries no valid CSRF token.
func requireIdentity(session Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := session.Identity(c.Request)
		if !ok {
			abortError(c, http.StatusUnauthorized, codeUnauthorized, "sign in required")
			return
		}
		if !safeMethod(c.Request.Method) && !session.ValidCSRF(c.Request) {
			abortError(c, http.StatusForbidden, codeForbidden, "invalid CSRF token")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identity(c).Staff {
			abortError(c, http.StatusForbidden, codeForbidden, "staff only")
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) *Identity {
	return c.MustGet(identityKey).(*Identity)
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
