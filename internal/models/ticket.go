package models

import "time"

// Ticket is a read-through projection of a remote issue.
type Ticket struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Status      TicketStatus `json:"status"`
	Priority    string       `json:"priority,omitempty"`
	Created     time.Time    `json:"created"`
	Updated     time.Time    `json:"updated"`
	Reporter    *UserRef     `json:"reporter,omitempty"`
	Assignee    *UserRef     `json:"assignee,omitempty"`
	Labels      []string     `json:"labels"`
	Attachments []Attachment `json:"attachments"`
}

// TicketStatus is the workflow status of a ticket and its category.
type TicketStatus struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// UserRef identifies a remote user.
type UserRef struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// Attachment is file metadata on a ticket. ContentURL points at the remote
// service and must go through the attachment fetcher.
type Attachment struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
	ContentURL string    `json:"content"`
}

// Comment is a ticket comment after its body has been flattened to text.
type Comment struct {
	ID       string    `json:"id"`
	Author   UserRef   `json:"author"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
	MediaIDs []string  `json:"mediaAttachmentIds"`
}

// TicketWithComments pairs a ticket with its extracted comments.
type TicketWithComments struct {
	Ticket   Ticket    `json:"ticket"`
	Comments []Comment `json:"comments"`
}

// ServiceRequest is the result of creating a customer request.
type ServiceRequest struct {
	IssueID       string       `json:"issueId"`
	IssueKey      string       `json:"issueKey"`
	ServiceDeskID string       `json:"serviceDeskId"`
	RequestTypeID string       `json:"requestTypeId"`
	CreatedDate   time.Time    `json:"createdDate"`
	Reporter      *UserRef     `json:"reporter,omitempty"`
	CurrentStatus TicketStatus `json:"currentStatus"`
}

// IssueRef is the bare reference returned by generic issue creation.
type IssueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// CreateRequestInput is consumed once per create call and never persisted.
type CreateRequestInput struct {
	Summary        string   `json:"summary"`
	Description    string   `json:"description"`
	RequesterName  string   `json:"requesterName"`
	RequesterEmail string   `json:"requesterEmail,omitempty"`
	OriginServerID string   `json:"originServerId,omitempty"`
	OriginUsername string   `json:"originUsername,omitempty"`
	OriginUserID   string   `json:"originUserId,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Labels         []string `json:"labels,omitempty"`
}

// Transition is a workflow transition available on a ticket.
type Transition struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	ToStatus TicketStatus `json:"to"`
}

// User is a remote user account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
}

// RequestType is a service desk request type.
type RequestType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
