package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
)

func transition(id, name, status, category string) models.Transition {
	return models.Transition{ID: id, Name: name, ToStatus: models.TicketStatus{Name: status, Category: category}}
}

func TestMatchTransition(t *testing.T) {
	transitions := []models.Transition{
		transition("41", "Resolved", "Archived", "Done"),
		transition("11", "Start progress", "In Progress", "In Progress"),
		transition("21", "Resolve", "Resolved", "Done"),
		transition("31", "Done", "Closed", "Done"),
	}

	tests := []struct {
		name   string
		target string
		wantID string
		wantOK bool
	}{
		{name: "status name beats earlier transition name", target: "resolved", wantID: "21", wantOK: true},
		{name: "transition name", target: "start progress", wantID: "11", wantOK: true},
		{name: "status name case-insensitive", target: "CLOSED", wantID: "31", wantOK: true},
		{name: "transition name beats category", target: "done", wantID: "31", wantOK: true},
		{name: "no match", target: "Waiting for customer", wantOK: false},
		{name: "blank target", target: "  ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchTransition(transitions, tt.target)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}

func TestMatchTransition_CategoryOnly(t *testing.T) {
	transitions := []models.Transition{
		transition("11", "Start progress", "In Progress", "In Progress"),
		transition("31", "Close issue", "Closed", "Done"),
	}

	got, ok := MatchTransition(transitions, "done")
	require.True(t, ok)
	assert.Equal(t, "31", got.ID)
}

func transitionsServer(t *testing.T, transitions []map[string]any, posted *string) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/SUP-9/transitions", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, http.StatusOK, map[string]any{"transitions": transitions})
		case http.MethodPost:
			var body struct {
				Transition struct {
					ID string `json:"id"`
				} `json:"transition"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*posted = body.Transition.ID
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func TestClient_TransitionIssue_ByCategory(t *testing.T) {
	var posted string
	server := transitionsServer(t, []map[string]any{
		{"id": "11", "name": "Start progress", "to": map[string]any{"name": "In Progress", "statusCategory": map[string]any{"name": "In Progress"}}},
		{"id": "31", "name": "Close issue", "to": map[string]any{"name": "Closed", "statusCategory": map[string]any{"name": "Done"}}},
	}, &posted)
	defer server.Close()

	applied, err := newTestClient(server).TransitionIssue(context.Background(), "SUP-9", "done")
	require.NoError(t, err)

	assert.Equal(t, "31", posted)
	assert.Equal(t, "Closed", applied.ToStatus.Name)
}

func TestClient_TransitionIssue_NoMatch(t *testing.T) {
	var posted string
	server := transitionsServer(t, []map[string]any{
		{"id": "11", "name": "Start progress", "to": map[string]any{"name": "In Progress"}},
	}, &posted)
	defer server.Close()

	applied, err := newTestClient(server).TransitionIssue(context.Background(), "SUP-9", "Archived")

	assert.Nil(t, applied)
	assert.True(t, remote.IsKind(err, remote.KindNoMatchingTransition))
	assert.Empty(t, posted)
}

func TestClient_AssignIssue(t *testing.T) {
	var received map[string]string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/3/issue/SUP-9/assignee", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestClient(server).AssignIssue(context.Background(), "SUP-9", "agent-1"))
	assert.Equal(t, map[string]string{"accountId": "agent-1"}, received)
}

func TestClient_IsUserAssignableInProject(t *testing.T) {
	tests := []struct {
		name       string
		candidates []map[string]any
		want       bool
	}{
		{
			name:       "exact account id",
			candidates: []map[string]any{{"accountId": "other", "displayName": "Sam Lee"}, {"accountId": "agent-1", "displayName": "Sam Lee"}},
			want:       true,
		},
		{
			name:       "same display name only",
			candidates: []map[string]any{{"accountId": "other", "displayName": "Sam Lee"}},
			want:       false,
		},
		{
			name:       "no candidates",
			candidates: []map[string]any{},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var query, project string
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/rest/api/3/user":
					writeJSON(t, w, http.StatusOK, map[string]any{"accountId": "agent-1", "displayName": "Sam Lee"})
				case "/rest/api/3/user/assignable/search":
					query = r.URL.Query().Get("query")
					project = r.URL.Query().Get("project")
					writeJSON(t, w, http.StatusOK, tt.candidates)
				}
			}))
			defer server.Close()

			ok, err := newTestClient(server).IsUserAssignableInProject(context.Background(), "agent-1", "")
			require.NoError(t, err)

			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "Sam Lee", query)
			assert.Equal(t, "SUP", project)
		})
	}
}

func TestClient_IsUserAssignableInProject_UnknownUser(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ok, err := newTestClient(server).IsUserAssignableInProject(context.Background(), "ghost", "SUP")

	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode(err))
}
