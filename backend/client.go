// Package backend talks to the console's REST backend: login and the
// "who am I" permissions endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oarkflow/permgate"
	"github.com/oarkflow/permgate/logger"
)

const (
	loginPath       = "/auth/login"
	permissionsPath = "/permissions/me"

	// maxBody bounds how much of a response is read.
	maxBody = 1 << 20
)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is a permgate.PermissionSource backed by the REST API
type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.Logger
}

var _ permgate.PermissionSource = (*Client)(nil)

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials is the login form
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the backend's answer to a successful login
type LoginResult struct {
	Token string
	User  *permgate.User
}

type loginResponse struct {
	Token   string   `json:"token"`
	User    *wireUser `json:"user"`
	Message string   `json:"message"`
}

type wireUser struct {
	ID          string          `json:"id"`
	MongoID     string          `json:"_id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	Permissions json.RawMessage `json:"permissions"`
}

func (w wireUser) toUser() *permgate.User {
	id := w.ID
	if id == "" {
		id = w.MongoID
	}
	return &permgate.User{
		ID:          id,
		Name:        w.Name,
		Email:       w.Email,
		Role:        permgate.Role(w.Role),
		Permissions: decodePermissions(w.Permissions),
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a token and the user record.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, raw, err := c.do(req)
	if err != nil {
		return nil, permgate.Wrap(permgate.CodeLoginFailed, "login request", err)
	}
	if status != http.StatusOK {
		e := permgate.Wrap(permgate.CodeLoginFailed, loginMessage(status, raw), nil)
		e.Status = status
		return nil, e
	}
	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, permgate.Wrap(permgate.CodeLoginFailed, "decode login response", err)
	}
	if resp.Token == "" {
		return nil, permgate.Wrap(permgate.CodeLoginFailed, "login response has no token", nil)
	}
	if resp.User == nil || resp.User.Role == "" {
		return nil, permgate.Wrap(permgate.CodeLoginFailed, "login response has no user", nil)
	}
	c.logger.Info("login succeeded", "email", creds.Email, "role", resp.User.Role)
	return &LoginResult{Token: resp.Token, User: resp.User.toUser()}, nil
}

func loginMessage(status int, raw []byte) string {
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Login failed with status: %d", status)
}

// FetchPermissions loads the role and permission map for token. A 401 is
// reported as CodeUnauthenticated, every other failure as CodeFetchFailed.
func (c *Client) FetchPermissions(ctx context.Context, token string) (*permgate.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+permissionsPath, nil)
	if err != nil {
		return nil, permgate.Wrap(permgate.CodeFetchFailed, "build permissions request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	status, raw, err := c.do(req)
	if err != nil {
		return nil, permgate.Wrap(permgate.CodeFetchFailed, "permissions request", err)
	}
	switch {
	case status == http.StatusUnauthorized:
		e := permgate.Wrap(permgate.CodeUnauthenticated, "token rejected", nil)
		e.Status = status
		return nil, e
	case status != http.StatusOK:
		e := permgate.Wrap(permgate.CodeFetchFailed, fmt.Sprintf("permissions endpoint returned %d", status), nil)
		e.Status = status
		return nil, e
	}
	var u wireUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, permgate.Wrap(permgate.CodeFetchFailed, "decode permissions response", err)
	}
	return u.toUser(), nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	c.logger.Debug("backend call", "method", req.Method, "path", req.URL.Path, "status", res.StatusCode)
	return res.StatusCode, raw, nil
}

// decodePermissions reads the permission map leniently. Entries that are
// not objects of booleans grant nothing; an unreadable map grants nothing.
func decodePermissions(raw json.RawMessage) permgate.PermissionMap {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var loose map[string]map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		var partial map[string]json.RawMessage
		if err := json.Unmarshal(raw, &partial); err != nil {
			return permgate.PermissionMap{}
		}
		loose = make(map[string]map[string]any, len(partial))
		for k, v := range partial {
			var set map[string]any
			if json.Unmarshal(v, &set) == nil {
				loose[k] = set
			}
		}
	}
	out := make(permgate.PermissionMap, len(loose))
	for res, actions := range loose {
		out[permgate.Resource(res)] = permgate.ActionSet{
			View:   actions["view"] == true,
			Manage: actions["manage"] == true,
		}
	}
	return out
}
