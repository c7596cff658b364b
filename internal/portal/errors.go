package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cragr/supportdesk/internal/remote"
	"github.com/cragr/supportdesk/internal/tokenstore"
)

// Error codes returned in the "error.code" field.
const (
	codeUnauthorized       = "portal:unauthorized"
	codeForbidden          = "portal:forbidden"
	codeInvalidRequest     = "portal:invalid_request"
	codeNotFound           = "portal:not_found"
	codeNotConnected       = "portal:not_connected"
	codeNotConfigured      = "tracker:not_configured"
	codeRemoteRejected     = "tracker:rejected"
	codeUnavailable        = "tracker:unavailable"
	codeUntrustedHost      = "tracker:untrusted_host"
	codeNoTransition       = "tracker:no_matching_transition"
	codeNotAssignable      = "tracker:not_assignable"
	codeInternal           = "portal:internal_error"
	codeStateMismatch      = "oauth:state_mismatch"
	codeOAuthNotConfigured = "oauth:not_configured"
	codeNoSites            = "oauth:no_accessible_sites"
)

// apiError is the JSON error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

// respondError maps a failure to a status. Messages are generic; remote
// bodies were already withheld by the executor.
func respondError(c *gin.Context, err error) {
	switch remote.KindOf(err) {
	case remote.KindNotConfigured:
		abortError(c, http.StatusServiceUnavailable, codeNotConfigured, "ticketing is not configured")
	case remote.KindRemoteRejected:
		if remote.StatusCode(err) == http.StatusNotFound {
			abortError(c, http.StatusNotFound, codeNotFound, "ticket not found")
			return
		}
		abortError(c, http.StatusBadGateway, codeRemoteRejected, "ticketing service rejected the request")
	case remote.KindTransport:
		abortError(c, http.StatusServiceUnavailable, codeUnavailable, "ticketing service unavailable")
	case remote.KindUntrustedHost:
		abortError(c, http.StatusBadRequest, codeUntrustedHost, "attachment host not allowed")
	case remote.KindNoMatchingTransition:
		abortError(c, http.StatusConflict, codeNoTransition, "no transition matches the requested status")
	default:
		if errors.Is(err, tokenstore.ErrNotFound) {
			abortError(c, http.StatusNotFound, codeNotConnected, "no connected site")
			return
		}
		abortError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
