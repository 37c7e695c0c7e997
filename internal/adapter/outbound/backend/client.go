// Package backend is a thin REST client for the hosted auth/data backend.
// The server owns users, profiles, and study groups; this facade only shapes
// requests and surfaces failures as errors with human-readable messages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("backend: not configured")

// APIError is a backend rejection with the server's message preserved.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Profile is the user-editable profile subset the facade forwards.
type Profile struct {
	Name      string `json:"name"`
	Course    string `json:"course,omitempty"`
	YearLevel string `json:"year_level,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// Session is an authenticated backend session.
type Session struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Group is one study group row.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Course      string `json:"course"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"member_count"`
	CreatedBy   string `json:"created_by"`
}

// Client talks to the hosted backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a facade client. apiKey is the service key sent with
// every request; per-user authorization rides on session access tokens.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client. For tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// SignUp registers a new account and returns its session.
func (c *Client) SignUp(ctx context.Context, email, password string, profile Profile) (Session, error) {
	var session Session
	payload := map[string]any{"email": email, "password": password, "profile": profile}
	err := c.do(ctx, http.MethodPost, "/auth/signup", "", payload, &session)
	return session, err
}

// SignIn authenticates and returns the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	payload := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/auth/signin", "", payload, &session)
	return session, err
}

// SignOut invalidates an access token. A missing or already-dead token is
// not an error worth surfacing to the user.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, http.MethodPost, "/auth/signout", accessToken, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return nil
	}
	return err
}

// RequestPasswordReset asks the backend to email a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/password-reset", "", map[string]string{"email": email}, nil)
}

// CreateGroup creates a study group owned by the session user.
func (c *Client) CreateGroup(ctx context.Context, accessToken string, group Group) (Group, error) {
	var created Group
	err := c.do(ctx, http.MethodPost, "/groups", accessToken, group, &created)
	return created, err
}

// ListGroups returns groups, optionally filtered by course.
func (c *Client) ListGroups(ctx context.Context, accessToken, course string) ([]Group, error) {
	path := "/groups"
	if course != "" {
		path += "?course=" + url.QueryEscape(course)
	}
	var groups []Group
	err := c.do(ctx, http.MethodGet, path, accessToken, nil, &groups)
	return groups, err
}

// JoinGroup adds the session user to a group.
func (c *Client) JoinGroup(ctx context.Context, accessToken, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/join", accessToken, nil, nil)
}

// LeaveGroup removes the session user from a group.
func (c *Client) LeaveGroup(ctx context.Context, accessToken, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/leave", accessToken, nil, nil)
}

// UpdateProfile replaces the session user's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, profile Profile) error {
	return c.do(ctx, http.MethodPut, "/profile", accessToken, profile, nil)
}

// CreateProblemReport files a problem report. fields is the sanitized form.
func (c *Client) CreateProblemReport(ctx context.Context, fields map[string]string) error {
	return c.do(ctx, http.MethodPost, "/reports", "", fields, nil)
}

// EmailAvailable reports whether email is not yet registered. Backend
// failures degrade to an "unable to verify" error rather than a guess.
func (c *Client) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, errors.New("email address is required")
	}

	var out struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodGet, "/profiles/available?email="+url.QueryEscape(email), "", nil, &out)
	if err != nil {
		c.logger.Warn("email availability check failed", "error", err)
		return false, errors.New("unable to verify email availability, please try again")
	}
	return out.Available, nil
}

// do issues one request and decodes the response into out (when non-nil).
// Non-2xx responses become *APIError with the server's message.
func (c *Client) do(ctx context.Context, method, path, accessToken string, payload, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend: failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("backend: failed to decode response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body,
// falling back to the HTTP status text.
func errorMessage(status int, raw []byte) string {
	var wire struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &wire); err == nil {
		if wire.Message != "" {
			return wire.Message
		}
		if wire.Error.Message != "" {
			return wire.Error.Message
		}
	}
	return http.StatusText(status)
}
