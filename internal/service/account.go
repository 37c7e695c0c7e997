package service

import (
	"context"

	"github.com/zenostudy/zeno/internal/adapter/outbound/backend"
	"github.com/zenostudy/zeno/internal/adapter/outbound/emailcheck"
	"github.com/zenostudy/zeno/internal/domain/password"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/domain/sanitize"
	"github.com/zenostudy/zeno/internal/domain/secureform"
)

// Credentials is the gated part of every account submission: the CSRF session
// binding plus the address the rate limit counter is keyed on.
type Credentials struct {
	SessionKey string
	Token      string
	Email      string
	Password   string
}

// AuthResult is a successful authentication with the rotated token.
type AuthResult struct {
	Session    backend.Session
	Submission secureform.Result
}

// Login authenticates against the backend. Five attempts per address per
// fifteen minutes; failed credentials consume an attempt but keep the CSRF
// token valid for the retry.
func (s *SubmissionService) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	email := sanitize.Email(creds.Email)
	pass := sanitize.Password(creds.Password)
	if email == "" || pass == "" {
		return AuthResult{}, &ValidationError{Problems: []string{"email and password are required"}}
	}

	form := secureform.FormData{"email": email}

	var session backend.Session
	result, err := s.submit(ctx, ratelimit.Login, creds.SessionKey, email, creds.Token, form, false,
		func(ctx context.Context, _ secureform.FormData, _ string) error {
			var err error
			session, err = s.backend.SignIn(ctx, email, pass)
			return err
		})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Session: session, Submission: result}, nil
}

// SignupRequest is a registration submission.
type SignupRequest struct {
	Credentials
	Name      string
	Course    string
	YearLevel string
}

// Signup registers a new account. The password must satisfy the strength
// policy, the address must not already be registered, and the email oracle's
// verdict is fed to the configured rules before the backend is called.
func (s *SubmissionService) Signup(ctx context.Context, req SignupRequest) (AuthResult, error) {
	email := sanitize.Email(req.Email)
	pass := sanitize.Password(req.Password)
	name := sanitize.Name(req.Name)

	var problems []string
	if email == "" {
		problems = append(problems, "a valid email address is required")
	}
	if name == "" {
		problems = append(problems, "name is required")
	}
	if v := password.Validate(pass); !v.Valid {
		problems = append(problems, "password must be at least 8 characters and meet 3 of the strength requirements")
	}
	if len(problems) > 0 {
		return AuthResult{}, &ValidationError{Problems: problems}
	}

	form := secureform.FormData{
		"email":      email,
		"name":       name,
		"course":     sanitize.Course(req.Course),
		"year_level": sanitize.YearLevel(req.YearLevel),
	}

	var session backend.Session
	result, err := s.submit(ctx, ratelimit.Signup, req.SessionKey, email, req.Token, form, true,
		func(ctx context.Context, form secureform.FormData, _ string) error {
			available, err := s.backend.EmailAvailable(ctx, email)
			if err != nil {
				// Uniqueness could not be verified; the backend enforces it
				// authoritatively on the insert anyway.
				s.logger.Warn("email uniqueness check degraded", "error", err)
			} else if !available {
				return ErrEmailTaken
			}

			session, err = s.backend.SignUp(ctx, email, pass, backend.Profile{
				Name:      form.Get("name"),
				Course:    form.Get("course"),
				YearLevel: form.Get("year_level"),
			})
			return err
		})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Session: session, Submission: result}, nil
}

// PasswordReset asks the backend to send a reset link. The response is the
// same whether or not the address is registered.
func (s *SubmissionService) PasswordReset(ctx context.Context, creds Credentials) (secureform.Result, error) {
	email := sanitize.Email(creds.Email)
	if email == "" {
		return secureform.Result{}, &ValidationError{Problems: []string{"a valid email address is required"}}
	}

	form := secureform.FormData{"email": email}
	return s.submit(ctx, ratelimit.PasswordReset, creds.SessionKey, email, creds.Token, form, false,
		func(ctx context.Context, _ secureform.FormData, _ string) error {
			return s.backend.RequestPasswordReset(ctx, email)
		})
}

// Logout invalidates the backend session and the CSRF token bound to the
// session key. Not gated: signing out must always work.
func (s *SubmissionService) Logout(ctx context.Context, sessionKey, accessToken string) error {
	if sessionKey != "" {
		if err := s.tokens.Remove(ctx, sessionKey); err != nil {
			s.logger.Warn("failed to remove csrf token on logout", "error", err)
		}
	}
	if accessToken == "" {
		return nil
	}
	return s.backend.SignOut(ctx, accessToken)
}

// EmailCheck is the combined verdict for one address: the oracle's quality
// assessment plus registration availability.
type EmailCheck struct {
	Verdict   emailcheck.Result `json:"verdict"`
	Message   string            `json:"message"`
	Status    string            `json:"status"`
	Available *bool             `json:"available,omitempty"`
	Note      string            `json:"note,omitempty"`
}

// CheckEmail validates an address with the oracle and checks availability
// against the backend. Both halves degrade independently; a degraded half is
// reported, never guessed.
func (s *SubmissionService) CheckEmail(ctx context.Context, rawEmail string) EmailCheck {
	email := sanitize.Email(rawEmail)
	verdict := s.emailVerdict(ctx, email)

	check := EmailCheck{
		Verdict: verdict,
		Message: emailcheck.Message(verdict),
		Status:  emailcheck.Status(verdict),
	}

	if email == "" || !verdict.IsValid {
		return check
	}

	available, err := s.backend.EmailAvailable(ctx, email)
	if err != nil {
		check.Note = err.Error()
		return check
	}
	check.Available = &available
	if !available {
		check.Note = "an account with this email already exists"
	}
	return check
}

// PasswordStrength scores a candidate password without storing it.
func (s *SubmissionService) PasswordStrength(raw string) password.Validation {
	return password.Validate(sanitize.Password(raw))
}
