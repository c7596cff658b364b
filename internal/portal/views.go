package portal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/models"
)

// PortalLabel is added to every ticket filed through the portal.
const PortalLabel = "support-portal"

const (
	maxSummaryLength     = 255
	maxDescriptionLength = 32000
	maxCommentLength     = 32000
)

// TicketView is the portal's projection of a ticket. Description holds only
// the user-written text; attachment content URLs are not exposed.
type TicketView struct {
	Key            string           `json:"key"`
	Summary        string           `json:"summary"`
	Description    string           `json:"description"`
	Status         string           `json:"status"`
	StatusCategory string           `json:"statusCategory"`
	Priority       string           `json:"priority,omitempty"`
	Assignee       string           `json:"assignee,omitempty"`
	Created        time.Time        `json:"created"`
	Updated        time.Time        `json:"updated"`
	Attachments    []AttachmentView `json:"attachments"`
	Comments       []CommentView    `json:"comments,omitempty"`
}

// AttachmentView is attachment metadata; content is fetched through the
// portal by id.
type AttachmentView struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// CommentView is a sanitized comment.
type CommentView struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
	MediaIDs []string  `json:"mediaAttachmentIds"`
}

// Sanitizer strips markup from text that came from the remote service.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a Sanitizer that allows no elements at all.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text sanitizes a single value.
func (s *Sanitizer) Text(v string) string {
	return s.policy.Sanitize(v)
}

func (s *Sanitizer) ticketView(t models.Ticket) TicketView {
	userText, _ := jira.SplitDescription(t.Description)

	v := TicketView{
		Key:            t.Key,
		Summary:        s.Text(t.Summary),
		Description:    s.Text(userText),
		Status:         s.Text(t.Status.Name),
		StatusCategory: s.Text(t.Status.Category),
		Priority:       s.Text(t.Priority),
		Created:        t.Created,
		Updated:        t.Updated,
		Attachments:    make([]AttachmentView, 0, len(t.Attachments)),
	}
	if t.Assignee != nil {
		v.Assignee = s.Text(t.Assignee.DisplayName)
	}
	for _, a := range t.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{
			ID:       a.ID,
			Filename: s.Text(a.Filename),
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return v
}

func (s *Sanitizer) commentView(c models.Comment) CommentView {
	mediaIDs := c.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return CommentView{
		ID:       c.ID,
		Author:   s.Text(c.Author.DisplayName),
		Body:     s.Text(c.Body),
		Created:  c.Created,
		MediaIDs: mediaIDs,
	}
}

// ownsTicket reports whether the ticket's trailer names the user. Staff
// may see every ticket.
func ownsTicket(t models.Ticket, id *Identity) bool {
	if id.Staff {
		return true
	}
	_, trailer := jira.SplitDescription(t.Description)
	owner := jira.TrailerField(trailer, jira.LabelOriginUserID)
	return owner != "" && owner == id.UserID
}

type createTicketRequest struct {
	Summary     string `json:"summary" binding:"required"`
	Description string `json:"description" binding:"required"`
	Priority    string `json:"priority"`
}

func (r createTicketRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Summary) == "":
		return errors.New("summary is required")
	case len(r.Summary) > maxSummaryLength:
		return fmt.Errorf("summary must be at most %d characters", maxSummaryLength)
	case strings.TrimSpace(r.Description) == "":
		return errors.New("description is required")
	case len(r.Description) > maxDescriptionLength:
		return fmt.Errorf("description must be at most %d characters", maxDescriptionLength)
	}
	return nil
}

// newCreateInput builds the create call for a signed-in user. The origin
// fields come from the session, never from the request body.
func newCreateInput(req createTicketRequest, id *Identity) models.CreateRequestInput {
	return models.CreateRequestInput{
		Summary:        strings.TrimSpace(req.Summary),
		Description:    req.Description,
		RequesterName:  id.DisplayName,
		RequesterEmail: id.Email,
		OriginServerID: id.ServerID,
		OriginUsername: id.Username,
		OriginUserID:   id.UserID,
		Priority:       req.Priority,
		Labels:         []string{PortalLabel},
	}
}

// portalComment attributes a reply to the portal user, since every
// comment is posted with the integration's own account.
func portalComment(id *Identity, text string) string {
	return fmt.Sprintf("Reply from %s via Support Portal:\n\n%s", id.DisplayName, strings.TrimSpace(text))
}
