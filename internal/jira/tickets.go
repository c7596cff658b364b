package jira

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cragr/supportdesk/internal/adf"
	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
)

// DefaultIssueType is used when falling back to generic issue creation.
const DefaultIssueType = "Task"

const (
	defaultSearchResults = 50
	maxSearchResults     = 100
	maxComments          = 100
)

// CreateResult is the outcome of CreateRequest: a customer request, a bare
// issue reference from the fallback path, or a mock when unconfigured.
type CreateResult struct {
	Mock    bool
	Request *models.ServiceRequest
	Issue   *models.IssueRef
}

// Key returns the issue key of whichever result is set.
func (r *CreateResult) Key() string {
	switch {
	case r == nil:
		return ""
	case r.Request != nil:
		return r.Request.IssueKey
	case r.Issue != nil:
		return r.Issue.Key
	default:
		return ""
	}
}

// CreateRequest files a ticket. Without credentials it returns a mock key
// and performs no I/O. Otherwise the origin trailer is appended to the
// description and a customer request is tried first, falling back to
// generic issue creation in the configured project.
func (c *Client) CreateRequest(ctx context.Context, input models.CreateRequestInput) (*CreateResult, error) {
	if !c.Configured() {
		key := MockKey(c.now())
		c.logger.Info("jira not configured, returning mock ticket",
			"issue_key", key,
		)
		return &CreateResult{Mock: true, Issue: &models.IssueRef{Key: key}}, nil
	}

	description := adf.FromText(BuildDescription(input))

	c.logger.Debug("creating ticket",
		"mode", c.Mode(),
		"summary", input.Summary,
	)

	if c.cfg.ServiceDeskID != "" && c.cfg.RequestTypeID != "" {
		request, err := c.createServiceRequest(ctx, input, description)
		if err == nil {
			c.logger.Info("created customer request",
				"issue_key", request.IssueKey,
				"service_desk_id", request.ServiceDeskID,
			)
			return &CreateResult{Request: request}, nil
		}
		c.logger.Warn("customer request failed, falling back to issue creation",
			"error_kind", remote.KindOf(err).String(),
			"status_code", remote.StatusCode(err),
		)
	}

	issue, err := c.createIssue(ctx, input, description)
	if err != nil {
		return nil, err
	}

	c.logger.Info("created issue",
		"issue_key", issue.Key,
		"project_key", c.cfg.ProjectKey,
	)
	return &CreateResult{Issue: issue}, nil
}

func (c *Client) createServiceRequest(ctx context.Context, input models.CreateRequestInput, description adf.Document) (*models.ServiceRequest, error) {
	fields := map[string]any{
		"summary":     input.Summary,
		"description": description,
	}
	if len(input.Labels) > 0 {
		fields["labels"] = input.Labels
	}
	if input.Priority != "" {
		fields["priority"] = map[string]string{"name": input.Priority}
	}

	payload := map[string]any{
		"serviceDeskId":      c.cfg.ServiceDeskID,
		"requestTypeId":      c.cfg.RequestTypeID,
		"isAdfRequest":       true,
		"requestFieldValues": fields,
	}

	var resp apiServiceRequest
	if err := c.do(ctx, "create_request", http.MethodPost, c.conn.serviceDeskBase+"/request", payload, &resp); err != nil {
		return nil, err
	}

	request := resp.model()
	return &request, nil
}

func (c *Client) createIssue(ctx context.Context, input models.CreateRequestInput, description adf.Document) (*models.IssueRef, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": c.cfg.ProjectKey},
		"summary":     input.Summary,
		"description": description,
		"issuetype":   map[string]string{"name": DefaultIssueType},
	}
	if len(input.Labels) > 0 {
		fields["labels"] = input.Labels
	}
	if input.Priority != "" {
		fields["priority"] = map[string]string{"name": input.Priority}
	}

	var resp models.IssueRef
	if err := c.do(ctx, "create_issue", http.MethodPost, c.conn.apiBase+"/issue", map[string]any{"fields": fields}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTicket fetches a single issue.
func (c *Client) GetTicket(ctx context.Context, key string) (*models.Ticket, error) {
	endpoint := fmt.Sprintf("%s/issue/%s?fields=%s",
		c.conn.apiBase, url.PathEscape(key), url.QueryEscape(strings.Join(issueFields, ",")))

	var resp apiIssue
	if err := c.do(ctx, "get_issue", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	ticket := resp.model()
	return &ticket, nil
}

// GetComments fetches an issue's comments, oldest first, with each body
// flattened to text.
func (c *Client) GetComments(ctx context.Context, key string) ([]models.Comment, error) {
	endpoint := fmt.Sprintf("%s/issue/%s/comment?orderBy=created&maxResults=%d",
		c.conn.apiBase, url.PathEscape(key), maxComments)

	var resp struct {
		Comments []apiComment `json:"comments"`
	}
	if err := c.do(ctx, "get_comments", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	comments := make([]models.Comment, 0, len(resp.Comments))
	for _, cm := range resp.Comments {
		comments = append(comments, cm.model())
	}
	return comments, nil
}

// GetTicketWithComments fetches an issue and its comments concurrently.
func (c *Client) GetTicketWithComments(ctx context.Context, key string) (*models.TicketWithComments, error) {
	var (
		ticket   *models.Ticket
		comments []models.Comment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ticket, err = c.GetTicket(gctx, key)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = c.GetComments(gctx, key)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.TicketWithComments{Ticket: *ticket, Comments: comments}, nil
}

// SearchIssues runs a JQL query. Callers must build jql from escaped values.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) ([]models.Ticket, error) {
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	payload := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     issueFields,
	}

	var resp struct {
		Issues []apiIssue `json:"issues"`
	}
	if err := c.do(ctx, "search_issues", http.MethodPost, c.conn.apiBase+"/search/jql", payload, &resp); err != nil {
		return nil, err
	}

	tickets := make([]models.Ticket, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		tickets = append(tickets, issue.model())
	}
	return tickets, nil
}

// GetTicketsByUser finds tickets whose trailer names the user.
func (c *Client) GetTicketsByUser(ctx context.Context, userID, username string) ([]models.Ticket, error) {
	if userID == "" {
		return []models.Ticket{}, nil
	}

	jql := UserTicketsJQL(c.cfg.ProjectKey, userID, username)

	c.logger.Debug("searching tickets by user",
		"user_id", userID,
	)

	return c.SearchIssues(ctx, jql, defaultSearchResults)
}

// AddComment posts text as a single-paragraph comment.
func (c *Client) AddComment(ctx context.Context, key, text string) (*models.Comment, error) {
	endpoint := fmt.Sprintf("%s/issue/%s/comment", c.conn.apiBase, url.PathEscape(key))

	var resp apiComment
	if err := c.do(ctx, "add_comment", http.MethodPost, endpoint, map[string]any{"body": adf.FromText(text)}, &resp); err != nil {
		return nil, err
	}

	comment := resp.model()
	return &comment, nil
}

// AddAttachment uploads content as a named file part.
func (c *Client) AddAttachment(ctx context.Context, key, filename string, content io.Reader) ([]models.Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/issue/%s/attachments", c.conn.apiBase, url.PathEscape(key))

	var resp []apiAttachment
	if err := c.upload(ctx, "add_attachment", endpoint, w.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}

	attachments := make([]models.Attachment, 0, len(resp))
	for _, a := range resp {
		attachments = append(attachments, a.model())
	}
	return attachments, nil
}

// ListRequestTypes lists the request types of the configured service desk.
func (c *Client) ListRequestTypes(ctx context.Context) ([]models.RequestType, error) {
	endpoint := fmt.Sprintf("%s/servicedesk/%s/requesttype", c.conn.serviceDeskBase, url.PathEscape(c.cfg.ServiceDeskID))

	var resp struct {
		Values []models.RequestType `json:"values"`
	}
	if err := c.do(ctx, "list_request_types", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}
