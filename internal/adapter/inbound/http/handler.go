package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zenostudy/zeno/internal/adapter/outbound/backend"
	"github.com/zenostudy/zeno/internal/domain/secureform"
	"github.com/zenostudy/zeno/internal/service"
)

// GuestCookieName carries the CSRF session key for unauthenticated flows.
const GuestCookieName = "zeno_guest"

// CSRFTokenHeader carries the submission token on gated requests.
const CSRFTokenHeader = "X-Csrf-Token"

// maxRequestBodySize is the maximum allowed request body size (64 KB). Form
// submissions are small; anything larger is not a form.
const maxRequestBodySize = 64 << 10

// APIHandler serves the public JSON API.
type APIHandler struct {
	svc     *service.SubmissionService
	metrics *Metrics
	logger  *slog.Logger
}

// NewAPIHandler creates the handler. metrics may be nil in tests.
func NewAPIHandler(svc *service.SubmissionService, metrics *Metrics, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{svc: svc, metrics: metrics, logger: logger}
}

// Routes returns the route table.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/csrf", h.handleCSRF)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/signup", h.handleSignup)
	mux.HandleFunc("POST /api/auth/password-reset", h.handlePasswordReset)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/groups", h.handleListGroups)
	mux.HandleFunc("POST /api/groups", h.handleCreateGroup)
	mux.HandleFunc("POST /api/groups/{id}/join", h.handleJoinGroup)
	mux.HandleFunc("POST /api/groups/{id}/leave", h.handleLeaveGroup)
	mux.HandleFunc("PUT /api/profile", h.handleUpdateProfile)
	mux.HandleFunc("POST /api/report-problem", h.handleReportProblem)
	mux.HandleFunc("GET /api/check-email", h.handleCheckEmail)
	mux.HandleFunc("POST /api/password-strength", h.handlePasswordStrength)

	return mux
}

// sessionKey returns the CSRF session key presented by the request: a key
// derived from the auth bearer when present, else the guest cookie. Binding
// authenticated tokens to the backend session means a client must fetch a
// fresh token after login, and logout invalidates the authenticated binding.
// The bearer is digested so raw access tokens never become store keys.
func sessionKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return "user:" + strconv.FormatUint(xxhash.Sum64String(token), 16)
	}
	if c, err := r.Cookie(GuestCookieName); err == nil {
		return c.Value
	}
	return ""
}

// bearerToken extracts the access token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// handleCSRF issues a token for the presented session key, minting a guest
// key (and cookie) when the client has none yet.
func (h *APIHandler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	grant, err := h.svc.IssueToken(r.Context(), sessionKey(r))
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to issue csrf token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to issue security token")
		return
	}

	if sessionKey(r) == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     GuestCookieName,
			Value:    grant.SessionKey,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	if h.metrics != nil {
		h.metrics.TokensIssued.Inc()
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"csrf_token": grant.Token})
}

func (h *APIHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	got, err := h.svc.Login(r.Context(), service.Credentials{
		SessionKey: sessionKey(r),
		Token:      r.Header.Get(CSRFTokenHeader),
		Email:      in.Email,
		Password:   in.Password,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "login", err)
		return
	}

	h.recordSubmission("login", "accepted")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      got.Session.UserID,
		"access_token": got.Session.AccessToken,
		"expires_at":   got.Session.ExpiresAt,
		"csrf_token":   got.Submission.NextToken,
		"remaining":    got.Submission.Remaining,
	})
}

func (h *APIHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Name      string `json:"name"`
		Course    string `json:"course"`
		YearLevel string `json:"year_level"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	got, err := h.svc.Signup(r.Context(), service.SignupRequest{
		Credentials: service.Credentials{
			SessionKey: sessionKey(r),
			Token:      r.Header.Get(CSRFTokenHeader),
			Email:      in.Email,
			Password:   in.Password,
		},
		Name:      in.Name,
		Course:    in.Course,
		YearLevel: in.YearLevel,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "signup", err)
		return
	}

	h.recordSubmission("signup", "accepted")
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":      got.Session.UserID,
		"access_token": got.Session.AccessToken,
		"expires_at":   got.Session.ExpiresAt,
		"csrf_token":   got.Submission.NextToken,
		"remaining":    got.Submission.Remaining,
	})
}

func (h *APIHandler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	result, err := h.svc.PasswordReset(r.Context(), service.Credentials{
		SessionKey: sessionKey(r),
		Token:      r.Header.Get(CSRFTokenHeader),
		Email:      in.Email,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "password_reset", err)
		return
	}

	h.recordSubmission("password_reset", "accepted")
	h.writeJSON(w, http.StatusOK, map[string]any{
		// The response is identical whether or not the address is registered.
		"message":    "If an account exists for that address, a reset link has been sent.",
		"csrf_token": result.NextToken,
		"remaining":  result.Remaining,
	})
}

func (h *APIHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), sessionKey(r), bearerToken(r)); err != nil {
		h.writeSubmissionError(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context(), bearerToken(r), r.URL.Query().Get("course"))
	if err != nil {
		h.writeSubmissionError(w, r, "group_list", err)
		return
	}
	if groups == nil {
		groups = []backend.Group{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *APIHandler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID      string `json:"user_id"`
		Name        string `json:"name"`
		Course      string `json:"course"`
		Description string `json:"description"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	got, err := h.svc.CreateGroup(r.Context(), service.GroupRequest{
		SessionKey:  sessionKey(r),
		Token:       r.Header.Get(CSRFTokenHeader),
		AccessToken: bearerToken(r),
		UserID:      in.UserID,
		Name:        in.Name,
		Course:      in.Course,
		Description: in.Description,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "group_creation", err)
		return
	}

	h.recordSubmission("group_creation", "accepted")
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"group":      got.Group,
		"csrf_token": got.Submission.NextToken,
		"remaining":  got.Submission.Remaining,
	})
}

func (h *APIHandler) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	h.handleMembership(w, r, "group_join", h.svc.JoinGroup)
}

func (h *APIHandler) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	h.handleMembership(w, r, "group_leave", h.svc.LeaveGroup)
}

// handleMembership runs a gated join or leave for the group in the path.
func (h *APIHandler) handleMembership(w http.ResponseWriter, r *http.Request, operation string, call func(context.Context, service.GroupMembershipRequest) (secureform.Result, error)) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	result, err := call(r.Context(), service.GroupMembershipRequest{
		SessionKey:  sessionKey(r),
		Token:       r.Header.Get(CSRFTokenHeader),
		AccessToken: bearerToken(r),
		UserID:      in.UserID,
		GroupID:     r.PathValue("id"),
	})
	if err != nil {
		h.writeSubmissionError(w, r, operation, err)
		return
	}

	h.recordSubmission(operation, "accepted")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": result.NextToken,
		"remaining":  result.Remaining,
	})
}

func (h *APIHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID    string `json:"user_id"`
		Name      string `json:"name"`
		Course    string `json:"course"`
		YearLevel string `json:"year_level"`
		Bio       string `json:"bio"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	result, err := h.svc.UpdateProfile(r.Context(), service.ProfileRequest{
		SessionKey:  sessionKey(r),
		Token:       r.Header.Get(CSRFTokenHeader),
		AccessToken: bearerToken(r),
		UserID:      in.UserID,
		Name:        in.Name,
		Course:      in.Course,
		YearLevel:   in.YearLevel,
		Bio:         in.Bio,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "profile_update", err)
		return
	}

	h.recordSubmission("profile_update", "accepted")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": result.NextToken,
		"remaining":  result.Remaining,
	})
}

func (h *APIHandler) handleReportProblem(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if !h.decode(w, r, &fields) {
		return
	}

	result, err := h.svc.ReportProblem(r.Context(), service.ReportRequest{
		SessionKey: sessionKey(r),
		Token:      r.Header.Get(CSRFTokenHeader),
		Fields:     fields,
	})
	if err != nil {
		h.writeSubmissionError(w, r, "problem_report", err)
		return
	}

	h.recordSubmission("problem_report", "accepted")
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Thanks, your report has been filed.",
		"csrf_token": result.NextToken,
		"remaining":  result.Remaining,
	})
}

func (h *APIHandler) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.CheckEmail(r.Context(), email))
}

// handlePasswordStrength scores a candidate without persisting it anywhere.
// POST so the password never lands in access logs as a query parameter.
func (h *APIHandler) handlePasswordStrength(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if !h.decode(w, r, &in) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.PasswordStrength(in.Password))
}

// decode reads a JSON body into out, responding with 400 on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return false
	}
	return true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *APIHandler) recordSubmission(operation, outcome string) {
	if h.metrics != nil {
		h.metrics.SubmissionsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// writeSubmissionError maps a service error onto status, body and metrics.
// Gate refusals keep their user-facing messages verbatim; anything
// unrecognized is logged and hidden behind a generic 500.
func (h *APIHandler) writeSubmissionError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var (
		verr    *service.ValidationError
		denied  *service.PolicyDeniedError
		limited *secureform.RateLimitedError
		apiErr  *backend.APIError
	)

	switch {
	case errors.As(err, &verr):
		h.recordSubmission(operation, "refused")
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    verr.Error(),
			"problems": verr.Problems,
		})

	case errors.As(err, &limited):
		h.recordSubmission(operation, "refused")
		if h.metrics != nil {
			h.metrics.RateLimitRefusals.WithLabelValues(operation).Inc()
		}
		w.Header().Set("Retry-After", strconv.Itoa(limited.Seconds))
		h.writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       limited.Error(),
			"retry_after": limited.Seconds,
			"reset_at":    limited.ResetAt,
		})

	case errors.As(err, &denied):
		h.recordSubmission(operation, "refused")
		h.writeError(w, http.StatusForbidden, denied.Error())

	case errors.Is(err, secureform.ErrTokenInvalid), errors.Is(err, secureform.ErrTokenUnavailable):
		h.recordSubmission(operation, "refused")
		h.writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, secureform.ErrSubmissionInFlight):
		h.recordSubmission(operation, "refused")
		h.writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, service.ErrEmailTaken):
		h.recordSubmission(operation, "refused")
		h.writeError(w, http.StatusConflict, err.Error())

	case errors.As(err, &apiErr):
		h.recordSubmission(operation, "failed")
		h.writeError(w, apiErr.Status, apiErr.Message)

	case errors.Is(err, backend.ErrNotConfigured):
		h.recordSubmission(operation, "failed")
		h.writeError(w, http.StatusServiceUnavailable, "backend is not configured")

	default:
		h.recordSubmission(operation, "failed")
		LoggerFromContext(r.Context()).Error("submission failed",
			"operation", operation,
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// healthHandler responds 200 for liveness checks.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
