package jira

import (
	"encoding/json"
	"time"

	"github.com/cragr/supportdesk/internal/adf"
	"github.com/cragr/supportdesk/internal/models"
)

// timeLayouts are the timestamp formats the API uses. The REST API omits
// the colon in the zone offset.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339Nano,
}

// apiTime decodes API timestamps.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return err
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

type apiUser struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

func (u *apiUser) ref() *models.UserRef {
	if u == nil {
		return nil
	}
	return &models.UserRef{AccountID: u.AccountID, DisplayName: u.DisplayName}
}

type apiStatus struct {
	Name           string `json:"name"`
	StatusCategory struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"statusCategory"`
}

func (s apiStatus) model() models.TicketStatus {
	return models.TicketStatus{Name: s.Name, Category: s.StatusCategory.Name}
}

type apiAttachment struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	MimeType string  `json:"mimeType"`
	Size     int64   `json:"size"`
	Created  apiTime `json:"created"`
	Content  string  `json:"content"`
}

func (a apiAttachment) model() models.Attachment {
	return models.Attachment{
		ID:         a.ID,
		Filename:   a.Filename,
		MimeType:   a.MimeType,
		Size:       a.Size,
		Created:    a.Created.Time,
		ContentURL: a.Content,
	}
}

type apiIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string    `json:"summary"`
		Description adf.Body  `json:"description"`
		Status      apiStatus `json:"status"`
		Priority    *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Created     apiTime         `json:"created"`
		Updated     apiTime         `json:"updated"`
		Reporter    *apiUser        `json:"reporter"`
		Assignee    *apiUser        `json:"assignee"`
		Labels      []string        `json:"labels"`
		Attachments []apiAttachment `json:"attachment"`
	} `json:"fields"`
}

func (i apiIssue) model() models.Ticket {
	description, _ := adf.Extract(i.Fields.Description)

	t := models.Ticket{
		ID:          i.ID,
		Key:         i.Key,
		Summary:     i.Fields.Summary,
		Description: description,
		Status:      i.Fields.Status.model(),
		Created:     i.Fields.Created.Time,
		Updated:     i.Fields.Updated.Time,
		Reporter:    i.Fields.Reporter.ref(),
		Assignee:    i.Fields.Assignee.ref(),
		Labels:      i.Fields.Labels,
		Attachments: make([]models.Attachment, 0, len(i.Fields.Attachments)),
	}
	if i.Fields.Priority != nil {
		t.Priority = i.Fields.Priority.Name
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	for _, a := range i.Fields.Attachments {
		t.Attachments = append(t.Attachments, a.model())
	}
	return t
}

// issueFields is the field list requested for ticket reads.
var issueFields = []string{
	"summary", "description", "status", "priority", "created", "updated",
	"reporter", "assignee", "labels", "attachment",
}

type apiComment struct {
	ID      string   `json:"id"`
	Author  apiUser  `json:"author"`
	Body    adf.Body `json:"body"`
	Created apiTime  `json:"created"`
}

func (c apiComment) model() models.Comment {
	text, mediaIDs := adf.Extract(c.Body)
	return models.Comment{
		ID:       c.ID,
		Author:   models.UserRef{AccountID: c.Author.AccountID, DisplayName: c.Author.DisplayName},
		Body:     text,
		Created:  c.Created.Time,
		MediaIDs: mediaIDs,
	}
}

type apiTransition struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	To   apiStatus `json:"to"`
}

type apiServiceRequest struct {
	IssueID       string `json:"issueId"`
	IssueKey      string `json:"issueKey"`
	RequestTypeID string `json:"requestTypeId"`
	ServiceDeskID string `json:"serviceDeskId"`
	CreatedDate   struct {
		EpochMillis int64 `json:"epochMillis"`
	} `json:"createdDate"`
	Reporter      *apiUser `json:"reporter"`
	CurrentStatus struct {
		Status         string `json:"status"`
		StatusCategory string `json:"statusCategory"`
	} `json:"currentStatus"`
}

func (r apiServiceRequest) model() models.ServiceRequest {
	sr := models.ServiceRequest{
		IssueID:       r.IssueID,
		IssueKey:      r.IssueKey,
		ServiceDeskID: r.ServiceDeskID,
		RequestTypeID: r.RequestTypeID,
		Reporter:      r.Reporter.ref(),
		CurrentStatus: models.TicketStatus{
			Name:     r.CurrentStatus.Status,
			Category: r.CurrentStatus.StatusCategory,
		},
	}
	if r.CreatedDate.EpochMillis > 0 {
		sr.CreatedDate = time.UnixMilli(r.CreatedDate.EpochMillis).UTC()
	}
	return sr
}
