package service

import (
	"context"
	"log/slog"

	"github.com/zenostudy/zeno/internal/adapter/outbound/backend"
	"github.com/zenostudy/zeno/internal/adapter/outbound/emailcheck"
	"github.com/zenostudy/zeno/internal/domain/csrf"
	"github.com/zenostudy/zeno/internal/domain/formpolicy"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/domain/secureform"
)

// SubmissionService composes the submission gates with the outbound adapters.
// Every sensitive form flows through it: the CSRF manager and rate limiter
// guard the attempt, the policy engine inspects the sanitized fields, and the
// backend facade carries the accepted submission upstream.
type SubmissionService struct {
	tokens  *csrf.Manager
	limiter *ratelimit.Limiter
	policy  formpolicy.Engine
	oracle  *emailcheck.Client
	backend *backend.Client
	logger  *slog.Logger
}

// NewSubmissionService wires the service. policy may be nil when no rules are
// configured; every submission is then allowed through to the backend.
func NewSubmissionService(tokens *csrf.Manager, limiter *ratelimit.Limiter, policy formpolicy.Engine, oracle *emailcheck.Client, be *backend.Client, logger *slog.Logger) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		tokens:  tokens,
		limiter: limiter,
		policy:  policy,
		oracle:  oracle,
		backend: be,
		logger:  logger,
	}
}

// TokenGrant is a freshly issued CSRF token with the session key it is bound
// to. For unauthenticated flows the key is a synthesized guest key the client
// must present on the subsequent submit.
type TokenGrant struct {
	SessionKey string `json:"session_key"`
	Token      string `json:"token"`
}

// IssueToken issues a CSRF token for sessionKey, synthesizing a guest key
// when none is supplied. Issuing replaces any prior token for the key.
func (s *SubmissionService) IssueToken(ctx context.Context, sessionKey string) (TokenGrant, error) {
	if sessionKey == "" {
		sessionKey = csrf.GenerateGuestKey()
	}
	token, err := s.tokens.Generate(ctx, sessionKey)
	if err != nil {
		return TokenGrant{}, err
	}
	return TokenGrant{SessionKey: sessionKey, Token: token}, nil
}

// emailVerdict runs the oracle for an address. The oracle never blocks a
// submission on its own; its verdict only feeds policy evaluation.
func (s *SubmissionService) emailVerdict(ctx context.Context, email string) emailcheck.Result {
	if s.oracle == nil {
		return emailcheck.Result{Err: "Email validation service not configured"}
	}
	return s.oracle.Validate(ctx, email, false)
}

// checkPolicy evaluates the configured rules against the sanitized form.
// A deny becomes *PolicyDeniedError; an engine failure fails closed.
func (s *SubmissionService) checkPolicy(ctx context.Context, operation string, form secureform.FormData, verdict emailcheck.Result) error {
	if s.policy == nil {
		return nil
	}

	quality := verdict.QualityScore
	if verdict.Degraded() {
		quality = -1
	}
	decision, err := s.policy.Evaluate(ctx, formpolicy.EvaluationContext{
		Operation:        operation,
		Email:            form.Get("email"),
		EmailQuality:     quality,
		EmailDisposable:  verdict.Details.IsDisposable,
		EmailDeliverable: verdict.IsDeliverable,
		Fields:           form,
	})
	if err != nil {
		s.logger.Error("policy evaluation failed", "operation", operation, "error", err)
		return err
	}
	if !decision.Allowed {
		s.logger.Info("submission denied by policy",
			"operation", operation,
			"rule", decision.RuleName,
		)
		return &PolicyDeniedError{RuleName: decision.RuleName, Reason: decision.Reason}
	}
	return nil
}

// submit runs one attempt through the gates, evaluating policy between the
// gates and the business callback. withVerdict controls whether the oracle is
// consulted for the form's email before policy evaluation.
func (s *SubmissionService) submit(ctx context.Context, limit ratelimit.Config, sessionKey, identifier, token string, form secureform.FormData, withVerdict bool, callback secureform.Callback) (secureform.Result, error) {
	wrapped := func(ctx context.Context, form secureform.FormData, csrfToken string) error {
		var verdict emailcheck.Result
		if withVerdict {
			verdict = s.emailVerdict(ctx, form.Get("email"))
		} else {
			verdict = emailcheck.Result{Err: "not consulted"}
		}
		if err := s.checkPolicy(ctx, limit.Operation, form, verdict); err != nil {
			return err
		}
		return callback(ctx, form, csrfToken)
	}

	sub := secureform.NewSubmission(secureform.StaticToken(token), s.tokens, s.limiter, limit, sessionKey, identifier)
	result, err := sub.Submit(ctx, form, wrapped)
	if err != nil {
		s.logger.Info("submission refused", "operation", limit.Operation, "error", err)
		return result, err
	}

	s.logger.Info("submission accepted",
		"operation", limit.Operation,
		"remaining", result.Remaining,
	)
	return result, nil
}
