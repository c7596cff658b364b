// Package jira implements ticket operations against Jira Cloud and Jira
// Service Management, in either operator-credential or delegated OAuth mode.
package jira

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cragr/supportdesk/internal/remote"
)

// DefaultTimeout bounds a single round trip when no client is supplied.
const DefaultTimeout = 30 * time.Second

// Client handles communication with the Jira REST and service desk APIs.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	cfg          ClientConfig
	conn         connection
	exec         *remote.Executor
	downloads    *remote.Executor
	allowedHosts []string
	logger       *slog.Logger
	now          func() time.Time
}

type options struct {
	httpClient      *http.Client
	gatewayURL      string
	metrics         *remote.Metrics
	attachmentHosts []string
	now             func() time.Time
}

// Option customizes a Client.
type Option func(*options)

// WithHTTPClient sets the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithGatewayURL overrides the host delegated requests are routed through.
func WithGatewayURL(u string) Option {
	return func(o *options) { o.gatewayURL = u }
}

// WithMetrics records request outcomes.
func WithMetrics(m *remote.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAttachmentHosts replaces the attachment host allow-list.
func WithAttachmentHosts(hosts ...string) Option {
	return func(o *options) { o.attachmentHosts = hosts }
}

// WithClock sets the time source used for mock keys.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewClient creates a new Jira API client.
func NewClient(cfg ClientConfig, logger *slog.Logger, opts ...Option) *Client {
	o := options{
		gatewayURL:      DefaultGatewayURL,
		attachmentHosts: DefaultAttachmentHosts,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	if cfg.Auth == nil {
		cfg.Auth = BasicAuth{}
	}
	if cfg.ProjectKey == "" {
		cfg.ProjectKey = DefaultProjectKey
	}

	c := &Client{
		cfg:          cfg,
		conn:         cfg.Auth.connection(o.gatewayURL),
		exec:         remote.NewExecutor(httpClient, logger, o.metrics),
		allowedHosts: o.attachmentHosts,
		logger:       logger,
		now:          o.now,
	}

	downloadClient := *httpClient
	downloadClient.CheckRedirect = c.checkRedirect
	c.downloads = remote.NewExecutor(&downloadClient, logger, o.metrics)

	return c
}

// Configured reports whether the client has everything its mode requires.
// An unconfigured client never touches the network.
func (c *Client) Configured() bool {
	return c.cfg.configured()
}

// Mode returns "basic" or "oauth".
func (c *Client) Mode() string {
	return c.cfg.Auth.mode()
}

// ProjectKey returns the project used for search and fallback creation.
func (c *Client) ProjectKey() string {
	return c.cfg.ProjectKey
}

// do performs a JSON call against the remote API. body and out may be nil.
func (c *Client) do(ctx context.Context, op, method, url string, body any, out any) error {
	if !c.Configured() {
		return remote.NewError(remote.KindNotConfigured, op, nil)
	}

	req := remote.Request{
		Operation:     op,
		Method:        method,
		URL:           url,
		Authorization: c.conn.authHeader,
	}

	if body != nil {
		r, err := remote.JSONBody(body)
		if err != nil {
			return remote.NewError(remote.KindTransport, op, err)
		}
		req.Body = r
		req.ContentType = "application/json"
	}

	return c.exec.Do(ctx, req, out)
}

// upload sends a multipart body. The attachments endpoint rejects requests
// without the no-check token header.
func (c *Client) upload(ctx context.Context, op, url, contentType string, body io.Reader, out any) error {
	if !c.Configured() {
		return remote.NewError(remote.KindNotConfigured, op, nil)
	}

	return c.exec.Do(ctx, remote.Request{
		Operation:     op,
		Method:        http.MethodPost,
		URL:           url,
		Authorization: c.conn.authHeader,
		Body:          body,
		ContentType:   contentType,
		Header:        http.Header{"X-Atlassian-Token": []string{"no-check"}},
	}, out)
}
