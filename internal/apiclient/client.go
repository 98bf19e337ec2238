// Package apiclient is the HTTP client for the sitecms REST API. It maps
// transport and status failures onto the session error kinds so callers can
// react uniformly: a 401 on login is ErrInvalidCredentials, a 401 anywhere
// else is ErrSessionExpired, and an unreachable server is ErrNetworkFailure.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/session"
)

// ErrNotFound is returned for 404 responses
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response that maps to no other error kind
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.StatusCode, e.Message)
}

// Client represents an HTTP client for the sitecms API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a new API client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresAt   time.Time            `json:"expires_at"`
	User        session.UserIdentity `json:"user"`
}

// Login authenticates the user and returns the issued token
func (c *Client) Login(ctx context.Context, creds session.Credentials) (session.Grant, error) {
	var resp LoginResponse
	err := c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   LoginRequest{Email: creds.Email, Password: creds.Password},
		login:  true,
	}, &resp)
	if err != nil {
		return session.Grant{}, err
	}
	return session.Grant{Token: resp.AccessToken, ExpiresAt: resp.ExpiresAt, User: resp.User}, nil
}

// Logout revokes the token
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, requestSpec{method: http.MethodPost, path: "/api/auth/logout", token: token}, nil)
}

// Me returns the identity behind token
func (c *Client) Me(ctx context.Context, token string) (session.UserIdentity, error) {
	var user session.UserIdentity
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/api/auth/me", token: token}, &user)
	return user, err
}

// UpdateProfileRequest holds the editable profile fields
type UpdateProfileRequest struct {
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// UpdateMe updates the signed-in user's profile
func (c *Client) UpdateMe(ctx context.Context, token string, req UpdateProfileRequest) (session.UserIdentity, error) {
	var user session.UserIdentity
	err := c.do(ctx, requestSpec{method: http.MethodPut, path: "/api/auth/me", token: token, body: req}, &user)
	return user, err
}

// ListQuery filters and pages a list request
type ListQuery struct {
	Skip      int
	Limit     int
	Search    string
	OrderBy   string
	OrderDesc bool
	Filters   map[string]string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	if q.OrderDesc {
		v.Set("order_desc", "true")
	}
	for k, val := range q.Filters {
		v.Set(k, val)
	}
	return v
}

// Page is one page of a list response
type Page struct {
	Items []resource.Item `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
	Pages int             `json:"pages"`
}

// List returns a page of records of kind
func (c *Client) List(ctx context.Context, token string, kind *resource.Kind, q ListQuery) (*Page, error) {
	var page Page
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: kind.APIPath, query: q.values(), token: token}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns one record. Singleton kinds ignore id.
func (c *Client) Get(ctx context.Context, token string, kind *resource.Kind, id string) (resource.Item, error) {
	var item resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: itemPath(kind, id), token: token}, &item)
	return item, err
}

// Create stores a new record
func (c *Client) Create(ctx context.Context, token string, kind *resource.Kind, item resource.Item) (resource.Item, error) {
	var created resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodPost, path: kind.APIPath, token: token, body: item}, &created)
	return created, err
}

// Update changes the given fields of a record. Singleton kinds ignore id.
func (c *Client) Update(ctx context.Context, token string, kind *resource.Kind, id string, item resource.Item) (resource.Item, error) {
	var updated resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodPut, path: itemPath(kind, id), token: token, body: item}, &updated)
	return updated, err
}

// Delete removes a record
func (c *Client) Delete(ctx context.Context, token string, kind *resource.Kind, id string) error {
	return c.do(ctx, requestSpec{method: http.MethodDelete, path: itemPath(kind, id), token: token}, nil)
}

// Company returns the company profile
func (c *Client) Company(ctx context.Context, token string) (resource.Item, error) {
	var item resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/api/company", token: token}, &item)
	return item, err
}

// UpdateCompany creates or replaces the company profile
func (c *Client) UpdateCompany(ctx context.Context, token string, item resource.Item) (resource.Item, error) {
	var updated resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodPut, path: "/api/company", token: token, body: item}, &updated)
	return updated, err
}

// Stats returns record counts keyed by kind slug
func (c *Client) Stats(ctx context.Context, token string) (map[string]int64, error) {
	var stats map[string]int64
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/api/stats", token: token}, &stats)
	return stats, err
}

// KindStats returns the counters of a single kind, e.g. unread contacts
func (c *Client) KindStats(ctx context.Context, token string, kind *resource.Kind) (map[string]int64, error) {
	var stats map[string]int64
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: kind.APIPath + "/stats", token: token}, &stats)
	return stats, err
}

// MarkContactRead flags a contact message as read
func (c *Client) MarkContactRead(ctx context.Context, token, id string) (resource.Item, error) {
	var item resource.Item
	err := c.do(ctx, requestSpec{method: http.MethodPost, path: "/api/contacts/" + url.PathEscape(id) + "/read", token: token}, &item)
	return item, err
}

// ReplyContact records a reply to a contact message
func (c *Client) ReplyContact(ctx context.Context, token, id, message string) (resource.Item, error) {
	var item resource.Item
	err := c.do(ctx, requestSpec{
		method: http.MethodPost,
		path:   "/api/contacts/" + url.PathEscape(id) + "/reply",
		token:  token,
		body:   map[string]string{"message": message},
	}, &item)
	return item, err
}

// ActivityEntry is one audit log line
type ActivityEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Activity returns the most recent audit log entries
func (c *Client) Activity(ctx context.Context, token string, limit int) ([]ActivityEntry, error) {
	var entries []ActivityEntry
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/api/activity", query: q, token: token}, &entries)
	return entries, err
}

func itemPath(kind *resource.Kind, id string) string {
	if kind.Singleton {
		return kind.APIPath
	}
	return kind.APIPath + "/" + url.PathEscape(id)
}

type requestSpec struct {
	method string
	path   string
	query  url.Values
	token  string
	body   any
	login  bool
}

func (c *Client) do(ctx context.Context, spec requestSpec, out any) error {
	var body io.Reader
	if spec.body != nil {
		jsonData, err := json.Marshal(spec.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	target := c.baseURL + spec.path
	if len(spec.query) > 0 {
		target += "?" + spec.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if spec.token != "" {
		req.Header.Set("Authorization", "Bearer "+spec.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", session.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, spec.login)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response, login bool) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := strings.TrimSpace(string(raw))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && login:
		return fmt.Errorf("%w: %s", session.ErrInvalidCredentials, message)
	case resp.StatusCode == http.StatusForbidden && login:
		return fmt.Errorf("%w: %s", session.ErrInvalidCredentials, message)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", session.ErrSessionExpired, message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", session.ErrNetworkFailure, resp.StatusCode)
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}
}

var _ session.Backend = (*Client)(nil)
