package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cragr/supportdesk/internal/models"
	"github.com/cragr/supportdesk/internal/remote"
)

// GetTransitions lists the transitions currently legal for an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]models.Transition, error) {
	endpoint := fmt.Sprintf("%s/issue/%s/transitions", c.conn.apiBase, url.PathEscape(key))

	var resp struct {
		Transitions []apiTransition `json:"transitions"`
	}
	if err := c.do(ctx, "get_transitions", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	transitions := make([]models.Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		transitions = append(transitions, models.Transition{ID: t.ID, Name: t.Name, ToStatus: t.To.model()})
	}
	return transitions, nil
}

// MatchTransition picks the transition for target, compared
// case-insensitively against the destination status name, then the
// transition name, then the destination status category. Each level is
// tried across all transitions before the next.
func MatchTransition(transitions []models.Transition, target string) (models.Transition, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return models.Transition{}, false
	}

	levels := []func(models.Transition) string{
		func(t models.Transition) string { return t.ToStatus.Name },
		func(t models.Transition) string { return t.Name },
		func(t models.Transition) string { return t.ToStatus.Category },
	}
	for _, field := range levels {
		for _, t := range transitions {
			if strings.EqualFold(field(t), target) {
				return t, true
			}
		}
	}
	return models.Transition{}, false
}

// TransitionIssue moves an issue towards target. When nothing matches the
// failure is logged and returned as KindNoMatchingTransition; callers must
// not assume a transition happened.
func (c *Client) TransitionIssue(ctx context.Context, key, target string) (*models.Transition, error) {
	transitions, err := c.GetTransitions(ctx, key)
	if err != nil {
		return nil, err
	}

	match, ok := MatchTransition(transitions, target)
	if !ok {
		available := make([]string, 0, len(transitions))
		for _, t := range transitions {
			available = append(available, t.ToStatus.Name)
		}
		c.logger.Warn("no transition matches target status",
			"issue_key", key,
			"target", target,
			"available", strings.Join(available, ", "),
		)
		return nil, remote.NewError(remote.KindNoMatchingTransition, "transition_issue", nil)
	}

	endpoint := fmt.Sprintf("%s/issue/%s/transitions", c.conn.apiBase, url.PathEscape(key))
	payload := map[string]any{"transition": map[string]string{"id": match.ID}}

	if err := c.do(ctx, "transition_issue", http.MethodPost, endpoint, payload, nil); err != nil {
		return nil, err
	}

	c.logger.Info("transitioned issue",
		"issue_key", key,
		"transition", match.Name,
		"status", match.ToStatus.Name,
	)
	return &match, nil
}

// AssignIssue sets the assignee of an issue.
func (c *Client) AssignIssue(ctx context.Context, key, accountID string) error {
	endpoint := fmt.Sprintf("%s/issue/%s/assignee", c.conn.apiBase, url.PathEscape(key))
	return c.do(ctx, "assign_issue", http.MethodPut, endpoint, map[string]string{"accountId": accountID}, nil)
}

// GetUser fetches a user account.
func (c *Client) GetUser(ctx context.Context, accountID string) (*models.User, error) {
	endpoint := fmt.Sprintf("%s/user?accountId=%s", c.conn.apiBase, url.QueryEscape(accountID))

	var resp apiUser
	if err := c.do(ctx, "get_user", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	return &models.User{
		AccountID:    resp.AccountID,
		DisplayName:  resp.DisplayName,
		EmailAddress: resp.EmailAddress,
		Active:       resp.Active,
	}, nil
}

// IsUserAssignableInProject resolves the account's display name, searches
// assignable users by it and requires the exact account id in the results.
// A user with the same name is not enough.
func (c *Client) IsUserAssignableInProject(ctx context.Context, accountID, projectKey string) (bool, error) {
	if projectKey == "" {
		projectKey = c.cfg.ProjectKey
	}

	user, err := c.GetUser(ctx, accountID)
	if err != nil {
		return false, err
	}
	if user.DisplayName == "" {
		return false, nil
	}

	endpoint := fmt.Sprintf("%s/user/assignable/search?project=%s&query=%s&maxResults=50",
		c.conn.apiBase, url.QueryEscape(projectKey), url.QueryEscape(user.DisplayName))

	var candidates []apiUser
	if err := c.do(ctx, "search_assignable", http.MethodGet, endpoint, nil, &candidates); err != nil {
		return false, err
	}

	for _, candidate := range candidates {
		if candidate.AccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}
