package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cragr/supportdesk/internal/jira"
	"github.com/cragr/supportdesk/internal/models"
)

func TestOwnsTicket(t *testing.T) {
	spoofed := ownedBy("SUP-3", alice, "Discord User ID: 222")

	tests := []struct {
		name   string
		ticket *models.Ticket
		id     *Identity
		want   bool
	}{
		{name: "owner", ticket: ownedBy("SUP-1", alice, "help"), id: alice, want: true},
		{name: "other user", ticket: ownedBy("SUP-1", alice, "help"), id: bob, want: false},
		{name: "staff", ticket: ownedBy("SUP-1", alice, "help"), id: staff, want: true},
		{name: "no trailer", ticket: &models.Ticket{Key: "SUP-2", Description: "Filed by an agent"}, id: alice, want: false},
		{name: "id in user text", ticket: spoofed, id: bob, want: false},
		{name: "prefix of id", ticket: ownedBy("SUP-4", &Identity{UserID: "1111"}, "help"), id: alice, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownsTicket(*tt.ticket, tt.id))
		})
	}
}

func TestSanitizer_TicketView(t *testing.T) {
	s := NewSanitizer()
	ticket := ownedBy("SUP-1", alice, "Clicked <a href=\"javascript:x()\">here</a> then it broke")
	ticket.Assignee = &models.UserRef{DisplayName: "<img src=x onerror=alert(1)>Agent"}

	view := s.ticketView(*ticket)

	assert.Equal(t, "Clicked here then it broke", view.Description)
	assert.Equal(t, "Agent", view.Assignee)
	assert.Equal(t, "Open", view.Status)
	assert.Equal(t, "new", view.StatusCategory)
	assert.Equal(t, []AttachmentView{{ID: "500", Filename: "bot.log", MimeType: "text/plain", Size: 12}}, view.Attachments)
	assert.Nil(t, view.Comments)
}

func TestCreateTicketRequest_Validate(t *testing.T) {
	long := make([]byte, maxDescriptionLength+1)
	for i := range long {
		long[i] = 'a'
	}

	assert.NoError(t, createTicketRequest{Summary: "Bot offline", Description: "help"}.validate())
	assert.EqualError(t, createTicketRequest{Description: "help"}.validate(), "summary is required")
	assert.EqualError(t, createTicketRequest{Summary: "Bot offline", Description: string(long)}.validate(),
		"description must be at most 32000 characters")
}

func TestNewCreateInput(t *testing.T) {
	input := newCreateInput(createTicketRequest{Summary: " Bot offline ", Description: "help"}, alice)

	description := jira.BuildDescription(input)
	_, trailer := jira.SplitDescription(description)

	assert.Equal(t, "Bot offline", input.Summary)
	assert.Equal(t, "111", jira.TrailerField(trailer, jira.LabelOriginUserID))
	assert.Equal(t, "guild-1", jira.TrailerField(trailer, jira.LabelOriginServerID))
	assert.Equal(t, []string{PortalLabel}, input.Labels)
}

func TestPortalComment(t *testing.T) {
	assert.Equal(t, "Reply from Bob via Support Portal:\n\nthanks", portalComment(bob, "  thanks \n"))
}
