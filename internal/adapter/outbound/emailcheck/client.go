// Package emailcheck calls the Abstract email validation API and normalizes
// its response into a quality verdict. The oracle is advisory: when it is
// unconfigured or unreachable the verdict degrades to format-only and the
// submission flow continues.
package emailcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// DefaultBaseURL is the Abstract API email validation endpoint.
const DefaultBaseURL = "https://emailvalidation.abstractapi.com/v1/"

const defaultTimeout = 10 * time.Second

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

var basicFormatRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Details carries the per-check flags from the oracle.
type Details struct {
	ValidFormat  bool `json:"valid_format"`
	IsFreeEmail  bool `json:"is_free_email"`
	IsDisposable bool `json:"is_disposable"`
	IsRoleEmail  bool `json:"is_role_email"`
	IsCatchall   bool `json:"is_catchall"`
	MXFound      bool `json:"mx_found"`
	SMTPValid    bool `json:"smtp_valid"`
}

// Result is the normalized verdict for one address.
type Result struct {
	// IsValid means the format is valid and the oracle did not call the
	// address undeliverable.
	IsValid bool `json:"is_valid"`

	// IsDeliverable means the oracle positively confirmed deliverability.
	IsDeliverable bool `json:"is_deliverable"`

	// Suggestion is the autocorrected address, if the oracle offered one.
	Suggestion string `json:"suggestion,omitempty"`

	// QualityScore is 0..100.
	QualityScore int `json:"quality_score"`

	Details Details `json:"details"`

	// Err records why the verdict is degraded. A non-empty Err means the
	// oracle did not produce a full verdict; it never blocks submission.
	Err string `json:"error,omitempty"`
}

// Degraded reports whether the verdict came from a degraded path.
func (r Result) Degraded() bool {
	return r.Err != ""
}

// wireResponse mirrors the Abstract API response shape.
type wireResponse struct {
	Email          string    `json:"email"`
	Autocorrect    string    `json:"autocorrect"`
	Deliverability string    `json:"deliverability"`
	QualityScore   flexFloat `json:"quality_score"`
	IsValidFormat  wireFlag  `json:"is_valid_format"`
	IsFreeEmail    wireFlag  `json:"is_free_email"`
	IsDisposable   wireFlag  `json:"is_disposable_email"`
	IsRoleEmail    wireFlag  `json:"is_role_email"`
	IsCatchall     wireFlag  `json:"is_catchall_email"`
	IsMXFound      wireFlag  `json:"is_mx_found"`
	IsSMTPValid    wireFlag  `json:"is_smtp_valid"`
}

type wireFlag struct {
	Value bool   `json:"value"`
	Text  string `json:"text"`
}

// flexFloat accepts the quality score as either a JSON number or the quoted
// decimal string the API actually sends.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("quality_score %q is not numeric: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// Client is an Abstract API email validation client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. An empty apiKey is allowed; every verdict then
// degrades to format-only.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithBaseURL overrides the endpoint. For tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithHTTPClient overrides the HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Validate checks one address. It never fails the caller: transport or API
// errors produce a degraded verdict with Err set.
func (c *Client) Validate(ctx context.Context, email string, autoCorrect bool) Result {
	if email == "" || !basicFormatRe.MatchString(email) {
		return Result{Err: "Invalid email format"}
	}

	if c.apiKey == "" {
		return Result{
			IsValid: true,
			Details: Details{ValidFormat: true},
			Err:     "Email validation service not configured",
		}
	}

	result, err := c.call(ctx, email, autoCorrect)
	if err != nil {
		c.logger.Warn("email validation degraded", "error", err)
		return Result{
			Details: Details{ValidFormat: true},
			Err:     err.Error(),
		}
	}
	return result
}

func (c *Client) call(ctx context.Context, email string, autoCorrect bool) (Result, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid base url: %w", err)
	}
	query := endpoint.Query()
	query.Set("api_key", c.apiKey)
	query.Set("email", email)
	query.Set("auto_correct", strconv.FormatBool(autoCorrect))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return normalize(wire), nil
}

// normalize maps the wire response to the verdict. Valid means the format
// checks out and deliverability is not positively refuted; UNKNOWN
// deliverability stays valid but not deliverable.
func normalize(wire wireResponse) Result {
	score := int(float64(wire.QualityScore)*100 + 0.5)
	if float64(wire.QualityScore) > 1 {
		// Some plans already report 0..100.
		score = int(float64(wire.QualityScore) + 0.5)
	}
	if score > 100 {
		score = 100
	}

	return Result{
		IsValid:       wire.IsValidFormat.Value && wire.Deliverability != "UNDELIVERABLE",
		IsDeliverable: wire.Deliverability == "DELIVERABLE",
		Suggestion:    wire.Autocorrect,
		QualityScore:  score,
		Details: Details{
			ValidFormat:  wire.IsValidFormat.Value,
			IsFreeEmail:  wire.IsFreeEmail.Value,
			IsDisposable: wire.IsDisposable.Value,
			IsRoleEmail:  wire.IsRoleEmail.Value,
			IsCatchall:   wire.IsCatchall.Value,
			MXFound:      wire.IsMXFound.Value,
			SMTPValid:    wire.IsSMTPValid.Value,
		},
	}
}
