// Package portal serves the support portal's JSON endpoints on top of the
// ticket client, resolving a client per tenant for every request.
package portal

import (
	"context"
	"io"

	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/models"
)

// TicketService defines the ticket operations the portal needs.
type TicketService interface {
	Configured() bool
	Mode() string
	ProjectKey() string
	ListRequestTypes(ctx context.Context) ([]models.RequestType, error)
	CreateRequest(ctx context.Context, input models.CreateRequestInput) (*jira.CreateResult, error)
	GetTicket(ctx context.Context, key string) (*models.Ticket, error)
	GetTicketWithComments(ctx context.Context, key string) (*models.TicketWithComments, error)
	GetTicketsByUser(ctx context.Context, userID, username string) ([]models.Ticket, error)
	AddComment(ctx context.Context, key, text string) (*models.Comment, error)
	AddAttachment(ctx context.Context, key, filename string, content io.Reader) ([]models.Attachment, error)
	DownloadAttachment(ctx context.Context, rawURL string) (*jira.AttachmentContent, error)
	AssignIssue(ctx context.Context, key, accountID string) error
	IsUserAssignableInProject(ctx context.Context, accountID, projectKey string) (bool, error)
	TransitionIssue(ctx context.Context, key, target string) (*models.Transition, error)
}

// ClientResolver returns the ticket client for a tenant.
type ClientResolver interface {
	Client(ctx context.Context, tenantID string) (TicketService, error)
}

// OAuthFlow defines the delegated-grant operations the portal needs.
type OAuthFlow interface {
	Configured() bool
	AuthorizeURL(state, callbackURL string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*models.TokenSet, error)
	RefreshAccessToken(ctx context.Context, sealedRefreshToken string) (*models.TokenSet, error)
	DiscoverSites(ctx context.Context, accessToken string) ([]models.Site, error)
	Revoke(ctx context.Context, sealedRefreshToken string)
}
