package jira

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// DefaultGatewayURL is the host delegated-mode requests are routed through.
const DefaultGatewayURL = "https://api.atlassian.com"

// DefaultProjectKey is used for fallback issue creation when no project key
// is configured.
const DefaultProjectKey = "SUPPORT"

// Auth is one of BasicAuth or DelegatedAuth.
type Auth interface {
	connection(gatewayURL string) connection
	complete() bool
	mode() string
}

// BasicAuth authenticates a single operator with an account email and API
// token against the site directly.
type BasicAuth struct {
	Domain   string
	Email    string
	APIToken string
}

// DelegatedAuth authenticates a tenant with an OAuth access token. Requests
// go through the gateway using CloudID as a path segment.
type DelegatedAuth struct {
	CloudID     string
	AccessToken string
}

// connection holds the resolved base URLs and Authorization header.
type connection struct {
	apiBase         string
	serviceDeskBase string
	authHeader      string
}

func (a BasicAuth) connection(string) connection {
	site := "https://" + strings.TrimSuffix(strings.TrimPrefix(a.Domain, "https://"), "/")
	return connection{
		apiBase:         site + "/rest/api/3",
		serviceDeskBase: site + "/rest/servicedeskapi",
		authHeader:      "Basic " + base64.StdEncoding.EncodeToString([]byte(a.Email+":"+a.APIToken)),
	}
}

func (a BasicAuth) complete() bool {
	return a.Domain != "" && a.Email != "" && a.APIToken != ""
}

func (BasicAuth) mode() string { return "basic" }

func (a DelegatedAuth) connection(gatewayURL string) connection {
	site := strings.TrimSuffix(gatewayURL, "/") + "/ex/jira/" + url.PathEscape(a.CloudID)
	return connection{
		apiBase:         site + "/rest/api/3",
		serviceDeskBase: site + "/rest/servicedeskapi",
		authHeader:      "Bearer " + a.AccessToken,
	}
}

func (a DelegatedAuth) complete() bool {
	return a.CloudID != "" && a.AccessToken != ""
}

func (DelegatedAuth) mode() string { return "oauth" }

// ClientConfig is fixed for the life of a Client.
type ClientConfig struct {
	Auth          Auth
	ServiceDeskID string
	RequestTypeID string
	ProjectKey    string
}

// Defaults are the operator-level settings taken from the environment.
type Defaults struct {
	Domain        string
	Email         string
	APIToken      string
	ServiceDeskID string
	RequestTypeID string
	ProjectKey    string
}

// TenantAuth is a tenant's delegated grant.
type TenantAuth struct {
	CloudID       string
	AccessToken   string
	ServiceDeskID string
	RequestTypeID string
	ProjectKey    string
}

// ResolveConfig picks the authentication mode. A tenant with both an access
// token and a cloud id gets delegated mode; anything else falls back to the
// operator credentials. Tenant desk settings override the defaults when set.
func ResolveConfig(defaults Defaults, tenant *TenantAuth) ClientConfig {
	cfg := ClientConfig{
		ServiceDeskID: defaults.ServiceDeskID,
		RequestTypeID: defaults.RequestTypeID,
		ProjectKey:    defaults.ProjectKey,
	}

	if tenant != nil && tenant.AccessToken != "" && tenant.CloudID != "" {
		cfg.Auth = DelegatedAuth{CloudID: tenant.CloudID, AccessToken: tenant.AccessToken}
		if tenant.ServiceDeskID != "" {
			cfg.ServiceDeskID = tenant.ServiceDeskID
		}
		if tenant.RequestTypeID != "" {
			cfg.RequestTypeID = tenant.RequestTypeID
		}
		if tenant.ProjectKey != "" {
			cfg.ProjectKey = tenant.ProjectKey
		}
	} else {
		cfg.Auth = BasicAuth{Domain: defaults.Domain, Email: defaults.Email, APIToken: defaults.APIToken}
	}

	if cfg.ProjectKey == "" {
		cfg.ProjectKey = DefaultProjectKey
	}
	return cfg
}

// configured reports whether every field the mode requires is present.
// Credential mode additionally needs a service desk id.
func (c ClientConfig) configured() bool {
	switch a := c.Auth.(type) {
	case DelegatedAuth:
		return a.complete()
	case BasicAuth:
		return a.complete() && c.ServiceDeskID != ""
	default:
		return false
	}
}
