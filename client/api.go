package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/session"
	"github.com/trezcool/aits/core/user"
)

type (
	Credentials  = user.Credentials
	Registration = user.NewUser

	LoginResult struct {
		User    user.User `json:"user"`
		Access  string    `json:"access"`
		Refresh string    `json:"refresh"`
	}

	IssueFilter struct {
		Status string
	}
)

var _ session.Refresher = (*Client)(nil)

// Login authenticates with the credentials and starts the session.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, c.plain, http.MethodPost, c.paths.Login, nil, creds, &res); err != nil {
		return LoginResult{}, err
	}
	if res.Access == "" || res.Refresh == "" {
		return LoginResult{}, errors.New("login response is missing tokens")
	}
	if err := c.session.Start(ctx, session.TokenPair{Access: res.Access, Refresh: res.Refresh}); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (user.User, error) {
	var usr user.User
	err := c.do(ctx, c.plain, http.MethodPost, c.paths.Register, nil, reg, &usr)
	return usr, err
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var res struct {
		Access string `json:"access"`
	}
	in := map[string]string{"refresh": refreshToken}
	if err := c.do(ctx, c.plain, http.MethodPost, c.paths.Refresh, nil, in, &res); err != nil {
		return "", err
	}
	return res.Access, nil
}

// Logout tears the session down. The API keeps no server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// Restore checks that a stored session is still usable and returns its user.
// An expired access token is refreshed on the way.
func (c *Client) Restore(ctx context.Context) (user.User, error) {
	pair, err := c.session.Tokens(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "loading tokens")
	}
	if pair.IsZero() {
		return user.User{}, ErrNotLoggedIn
	}
	return c.Me(ctx)
}

func (c *Client) Me(ctx context.Context) (user.User, error) {
	var usr user.User
	err := c.do(ctx, c.authed, http.MethodGet, c.paths.Me, nil, nil, &usr)
	return usr, err
}

// ListUsers lists the users with role, or all users when empty. Registrars only.
func (c *Client) ListUsers(ctx context.Context, role string) ([]user.User, error) {
	query := make(url.Values)
	if role != "" {
		query.Set("role", role)
	}
	var users []user.User
	err := c.do(ctx, c.authed, http.MethodGet, c.paths.Users, query, nil, &users)
	return users, err
}

func (c *Client) ListIssues(ctx context.Context, filter IssueFilter) ([]issue.Issue, error) {
	query := make(url.Values)
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	var issues []issue.Issue
	err := c.do(ctx, c.authed, http.MethodGet, c.paths.Issues, query, nil, &issues)
	return issues, err
}

func (c *Client) issuePath(id int, action ...string) string {
	path := c.paths.Issues + "/" + strconv.Itoa(id)
	if len(action) > 0 {
		path += "/" + action[0]
	}
	return path
}

func (c *Client) GetIssue(ctx context.Context, id int) (issue.Issue, error) {
	var iss issue.Issue
	err := c.do(ctx, c.authed, http.MethodGet, c.issuePath(id), nil, nil, &iss)
	return iss, err
}

func (c *Client) CreateIssue(ctx context.Context, ni issue.NewIssue) (issue.Issue, error) {
	var iss issue.Issue
	err := c.do(ctx, c.authed, http.MethodPost, c.paths.Issues, nil, ni, &iss)
	return iss, err
}

func (c *Client) UpdateIssue(ctx context.Context, id int, ui issue.UpdateIssue) (issue.Issue, error) {
	var iss issue.Issue
	err := c.do(ctx, c.authed, http.MethodPatch, c.issuePath(id), nil, ui, &iss)
	return iss, err
}

func (c *Client) DeleteIssue(ctx context.Context, id int) error {
	return c.do(ctx, c.authed, http.MethodDelete, c.issuePath(id), nil, nil, nil)
}

func (c *Client) AssignIssue(ctx context.Context, id, lecturerID int) (issue.Issue, error) {
	var iss issue.Issue
	in := map[string]int{"lecturer_id": lecturerID}
	err := c.do(ctx, c.authed, http.MethodPost, c.issuePath(id, "assign"), nil, in, &iss)
	return iss, err
}

func (c *Client) ResolveIssue(ctx context.Context, id int) (issue.Issue, error) {
	var iss issue.Issue
	err := c.do(ctx, c.authed, http.MethodPost, c.issuePath(id, "resolve"), nil, nil, &iss)
	return iss, err
}

func (c *Client) ListNotifications(ctx context.Context) ([]issue.Notification, error) {
	var notes []issue.Notification
	err := c.do(ctx, c.authed, http.MethodGet, c.paths.Notifications, nil, nil, &notes)
	return notes, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int) (issue.Notification, error) {
	var note issue.Notification
	path := c.paths.Notifications + "/" + strconv.Itoa(id) + "/mark-read"
	err := c.do(ctx, c.authed, http.MethodPost, path, nil, nil, &note)
	return note, err
}
